package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocalStorage(t *testing.T) *LocalStorage {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	s := setupLocalStorage(t)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		err := s.Upload(ctx, "runs/abc/step-1.png", bytes.NewReader([]byte("fake-png")))
		require.NoError(t, err)

		rc, err := s.Download(ctx, "runs/abc/step-1.png")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, []byte("fake-png"), data)
	})

	t.Run("download missing file", func(t *testing.T) {
		_, err := s.Download(ctx, "runs/missing.png")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("empty path rejected", func(t *testing.T) {
		err := s.Upload(ctx, "", bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		err := s.Upload(ctx, "../escape.png", bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrInvalidPath)
	})
}

func TestLocalStorage_UploadIfAbsent(t *testing.T) {
	s := setupLocalStorage(t)
	ctx := context.Background()

	t.Run("first write wins", func(t *testing.T) {
		err := s.UploadIfAbsent(ctx, "baselines/tc1/1.png", bytes.NewReader([]byte("first")))
		require.NoError(t, err)

		err = s.UploadIfAbsent(ctx, "baselines/tc1/1.png", bytes.NewReader([]byte("second")))
		assert.ErrorIs(t, err, ErrAlreadyExists)

		rc, err := s.Download(ctx, "baselines/tc1/1.png")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), data)
	})

	t.Run("absent path succeeds", func(t *testing.T) {
		err := s.UploadIfAbsent(ctx, "baselines/tc2/1.png", bytes.NewReader([]byte("baseline")))
		assert.NoError(t, err)
	})
}

func TestLocalStorage_Exists(t *testing.T) {
	s := setupLocalStorage(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "nothing-here.png")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Upload(ctx, "present.png", bytes.NewReader([]byte("x"))))

	exists, err = s.Exists(ctx, "present.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorage_Delete(t *testing.T) {
	s := setupLocalStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "todelete.png", bytes.NewReader([]byte("x"))))
	require.NoError(t, s.Delete(ctx, "todelete.png"))

	err := s.Delete(ctx, "todelete.png")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
