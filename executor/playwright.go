package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/iqap-dev/iqap-runner/blueprint"
)

// PlaywrightSession drives one browser page through Playwright.
type PlaywrightSession struct {
	page    pw.Page
	timeout time.Duration
}

// NewPlaywrightSession opens a fresh page on an already-launched browser.
// The timeout bounds each individual interaction, not the whole run.
func NewPlaywrightSession(browser pw.Browser, timeout time.Duration) (*PlaywrightSession, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &PlaywrightSession{page: page, timeout: timeout}, nil
}

// NewPlaywrightFactory returns a SessionFactory bound to a launched browser.
func NewPlaywrightFactory(browser pw.Browser, timeout time.Duration) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		return NewPlaywrightSession(browser, timeout)
	}
}

// Navigate loads the URL and waits for the DOM to be ready.
func (s *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	_, err := s.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
		Timeout:   pw.Float(float64(s.timeout.Milliseconds())),
	})
	return s.classify(err)
}

// Click clicks the element. Playwright's own actionability wait covers
// enablement and occlusion; running out of it maps to a timeout failure.
func (s *PlaywrightSession) Click(ctx context.Context, el *blueprint.ElementDescriptor) error {
	locator, err := s.locate(el)
	if err != nil {
		return err
	}
	return s.classify(locator.Click(pw.LocatorClickOptions{
		Timeout: pw.Float(float64(s.timeout.Milliseconds())),
	}))
}

// Fill replaces the element's value with the given text.
func (s *PlaywrightSession) Fill(ctx context.Context, el *blueprint.ElementDescriptor, value string) error {
	locator, err := s.locate(el)
	if err != nil {
		return err
	}
	return s.classify(locator.Fill(value, pw.LocatorFillOptions{
		Timeout: pw.Float(float64(s.timeout.Milliseconds())),
	}))
}

// IsVisible reports whether the element is currently visible.
func (s *PlaywrightSession) IsVisible(ctx context.Context, el *blueprint.ElementDescriptor) (bool, error) {
	locator, err := s.locate(el)
	if err != nil {
		return false, err
	}
	visible, err := locator.IsVisible()
	if err != nil {
		return false, s.classify(err)
	}
	return visible, nil
}

// BoundingBox returns the element's page-coordinate box; a detached element
// yields a zero box rather than an error.
func (s *PlaywrightSession) BoundingBox(ctx context.Context, el *blueprint.ElementDescriptor) (blueprint.BoundingBox, error) {
	locator, err := s.locate(el)
	if err != nil {
		return blueprint.BoundingBox{}, err
	}
	rect, err := locator.BoundingBox()
	if err != nil {
		return blueprint.BoundingBox{}, s.classify(err)
	}
	if rect == nil {
		return blueprint.BoundingBox{}, nil
	}
	return blueprint.BoundingBox{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

// Screenshot captures the current viewport as a PNG.
func (s *PlaywrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	shot, err := s.page.Screenshot(pw.PageScreenshotOptions{})
	if err != nil {
		return nil, s.classify(err)
	}
	return shot, nil
}

// Close closes the page.
func (s *PlaywrightSession) Close() error {
	return s.page.Close()
}

// locate builds a Playwright locator from the descriptor's captured
// attributes, in the same precedence the crawler derives logical IDs.
func (s *PlaywrightSession) locate(el *blueprint.ElementDescriptor) (pw.Locator, error) {
	if el == nil {
		return nil, fmt.Errorf("%w: nil element", ErrLocatorNotFound)
	}

	if id := el.Attributes["id"]; id != "" {
		return s.page.Locator(fmt.Sprintf("#%s", id)), nil
	}
	for _, attr := range []string{"data-test", "name", "aria-label"} {
		if v := el.Attributes[attr]; v != "" {
			return s.page.Locator(fmt.Sprintf("[%s=%q]", attr, v)), nil
		}
	}
	if el.VisibleText != "" {
		return s.page.GetByText(el.VisibleText, pw.PageGetByTextOptions{Exact: pw.Bool(true)}), nil
	}

	return nil, fmt.Errorf("%w: descriptor %q has no addressable attribute", ErrLocatorNotFound, el.LogicalID)
}

// classify maps Playwright errors onto the executor's failure taxonomy.
func (s *PlaywrightSession) classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Timeout"):
		return fmt.Errorf("%w: %v", ErrInteractionTimeout, err)
	case strings.Contains(msg, "Target closed"),
		strings.Contains(msg, "has been closed"),
		strings.Contains(msg, "browser closed"):
		return fmt.Errorf("%w: %v", ErrSessionCrashed, err)
	default:
		return err
	}
}
