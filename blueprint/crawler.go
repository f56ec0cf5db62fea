package blueprint

import (
	"context"
	"fmt"
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/iqap-dev/iqap-runner/logger"
)

// interactiveSelector matches the element kinds the crawler snapshots.
const interactiveSelector = `button, a, input, select, textarea, [role="button"], [role="link"]`

// descriptorAttributes are the attributes captured into each descriptor's
// attribute map, in logical ID precedence order after "id".
var descriptorAttributes = []string{"data-test", "name", "placeholder", "aria-label", "type"}

// Crawler implements Provider by driving a headless browser over the target
// page and snapshotting its interactive elements.
type Crawler struct {
	browser pw.Browser
	timeout time.Duration
	logger  logger.Logger
}

// NewCrawler creates a crawler on an already-launched browser. The timeout
// bounds the whole crawl including navigation.
func NewCrawler(browser pw.Browser, timeout time.Duration, log logger.Logger) *Crawler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Crawler{
		browser: browser,
		timeout: timeout,
		logger:  log,
	}
}

// Get crawls the URL and returns its blueprint.
func (c *Crawler) Get(ctx context.Context, url string) (*UIBlueprint, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	c.logger.Info(ctx, "crawling target page", map[string]interface{}{
		"url": url,
	})

	page, err := c.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
		Timeout:   pw.Float(float64(c.timeout.Milliseconds())),
	}); err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrCrawlTimeout, url)
		}
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	locators := page.Locator(interactiveSelector)
	count, err := locators.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate elements: %w", err)
	}

	bp := &UIBlueprint{URL: url}
	for i := 0; i < count; i++ {
		desc, ok := c.describe(locators.Nth(i), i)
		if !ok {
			continue
		}
		bp.Elements = append(bp.Elements, desc)
	}

	c.logger.Info(ctx, "blueprint captured", map[string]interface{}{
		"url":      url,
		"elements": len(bp.Elements),
	})

	return bp, nil
}

// describe snapshots a single element. Elements that are invisible or vanish
// mid-inspection are skipped rather than failing the whole crawl.
func (c *Crawler) describe(locator pw.Locator, index int) (ElementDescriptor, bool) {
	visible, err := locator.IsVisible()
	if err != nil || !visible {
		return ElementDescriptor{}, false
	}

	tag := "element"
	if raw, err := locator.Evaluate("el => el.tagName.toLowerCase()", nil); err == nil {
		if s, ok := raw.(string); ok && s != "" {
			tag = s
		}
	}

	text := ""
	if t, err := locator.TextContent(); err == nil {
		text = strings.TrimSpace(t)
	}

	attrs := make(map[string]string)
	id, _ := locator.GetAttribute("id")
	if id != "" {
		attrs["id"] = id
	}
	for _, name := range descriptorAttributes {
		if v, err := locator.GetAttribute(name); err == nil && v != "" {
			attrs[name] = v
		}
	}

	role := tag
	if r, err := locator.GetAttribute("role"); err == nil && r != "" {
		role = r
	}

	box := BoundingBox{}
	if rect, err := locator.BoundingBox(); err == nil && rect != nil {
		box = BoundingBox{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
	}

	return ElementDescriptor{
		LogicalID:   logicalID(id, attrs, text, tag, index),
		Role:        role,
		VisibleText: text,
		Attributes:  attrs,
		BoundingBox: box,
	}, true
}

// logicalID derives a stable identifier for an element. Precedence follows
// the discovery contract: id, data-test, name, aria-label, visible text,
// then a positional fallback.
func logicalID(id string, attrs map[string]string, text, tag string, index int) string {
	if id != "" {
		return id
	}
	for _, key := range []string{"data-test", "name", "aria-label"} {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	if text != "" {
		return strings.ReplaceAll(NormalizeText(text), " ", "_")
	}
	return fmt.Sprintf("%s_%d", tag, index)
}

func isTimeout(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Timeout")
}
