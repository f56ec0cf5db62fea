package main

import (
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"gorm.io/gorm"

	"github.com/iqap-dev/iqap-runner/database"
	"github.com/iqap-dev/iqap-runner/storage"
)

// connectDatabase opens the MySQL connection described by the config.
func connectDatabase(cfg *Config) (*gorm.DB, error) {
	return database.Connect(database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
}

// newBlobStorage builds the configured artifact and baseline store.
func newBlobStorage(cfg *Config) (storage.BlobStorage, error) {
	return storage.NewBlobStorage(cfg.Storage.Type, map[string]interface{}{
		"base_dir":       cfg.Storage.BaseDir,
		"bucket":         cfg.Storage.S3Bucket,
		"region":         cfg.Storage.S3Region,
		"presign_expiry": cfg.Storage.S3PresignExpiry,
	})
}

// launchBrowser starts Playwright and launches a Chromium instance shared by
// all sessions in this process.
func launchBrowser(cfg *Config) (*pw.Playwright, pw.Browser, error) {
	run, err := pw.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := run.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(cfg.Browser.Headless),
	})
	if err != nil {
		_ = run.Stop()
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return run, browser, nil
}

// actionTimeout returns the per-interaction budget with a floor.
func actionTimeout(cfg *Config) time.Duration {
	if cfg.Browser.ActionTimeout <= 0 {
		return 10 * time.Second
	}
	return cfg.Browser.ActionTimeout
}
