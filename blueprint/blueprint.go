package blueprint

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrCrawlTimeout is returned when the target page could not be crawled
	// within the provider's time budget.
	ErrCrawlTimeout = errors.New("blueprint crawl timed out")

	// ErrEmptyURL is returned when no target URL is given.
	ErrEmptyURL = errors.New("target URL is required")
)

// BoundingBox describes an element's position and size in page coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box's area in square pixels.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// ElementDescriptor is a snapshot of one interactive element on the target page.
type ElementDescriptor struct {
	LogicalID   string            `json:"logical_id"`
	Role        string            `json:"role"`
	VisibleText string            `json:"visible_text"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	BoundingBox BoundingBox       `json:"bounding_box"`
}

// UIBlueprint is an ordered snapshot of a page's interactive elements.
// It is produced once per target URL per run and is immutable during execution.
type UIBlueprint struct {
	URL      string              `json:"url"`
	Elements []ElementDescriptor `json:"elements"`
}

// Provider produces a UIBlueprint for a target URL.
type Provider interface {
	// Get crawls the URL and returns its blueprint. A crawl that exceeds the
	// provider's time budget fails with ErrCrawlTimeout.
	Get(ctx context.Context, url string) (*UIBlueprint, error)
}

// NormalizeText lowercases a string and collapses runs of whitespace to a
// single space. Locator fallback matching and logical ID derivation both use
// this normal form.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
