package visual

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrUndecodable is returned when a screenshot or baseline cannot be
// decoded as a PNG image.
var ErrUndecodable = errors.New("image could not be decoded")

// Similarity computes the fraction of pixels that are identical between two
// PNG-encoded images. Images of different dimensions score 0: a layout shift
// that resizes the page is a visual change, not an error.
func Similarity(baseline, candidate []byte) (float64, error) {
	baseImg, err := decodePNG(baseline)
	if err != nil {
		return 0, fmt.Errorf("baseline: %w", err)
	}
	candImg, err := decodePNG(candidate)
	if err != nil {
		return 0, fmt.Errorf("candidate: %w", err)
	}

	baseBounds := baseImg.Bounds()
	candBounds := candImg.Bounds()
	if baseBounds.Dx() != candBounds.Dx() || baseBounds.Dy() != candBounds.Dy() {
		return 0, nil
	}

	total := baseBounds.Dx() * baseBounds.Dy()
	if total == 0 {
		return 1, nil
	}

	matching := 0
	for y := 0; y < baseBounds.Dy(); y++ {
		for x := 0; x < baseBounds.Dx(); x++ {
			br, bg, bb, ba := baseImg.At(baseBounds.Min.X+x, baseBounds.Min.Y+y).RGBA()
			cr, cg, cb, ca := candImg.At(candBounds.Min.X+x, candBounds.Min.Y+y).RGBA()
			if br == cr && bg == cg && bb == cb && ba == ca {
				matching++
			}
		}
	}

	return float64(matching) / float64(total), nil
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}
