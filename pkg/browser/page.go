package browser

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// ScreenshotQuality is the JPEG quality used for step screenshots.
const ScreenshotQuality = 70

// Page wraps a Playwright page with the operations the agent's tools use.
type Page struct {
	pw playwright.Page
}

// Navigate loads url and waits for DOMContentLoaded.
func (p *Page) Navigate(url string) error {
	_, err := p.pw.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the first element matching selector.
func (p *Page) Click(selector string) error {
	if err := p.pw.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Fill replaces the value of an input.
func (p *Page) Fill(selector, value string) error {
	if err := p.pw.Fill(selector, value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Press sends a key or chord such as "Enter" or "Control+A".
func (p *Page) Press(key string) error {
	if err := p.pw.Keyboard().Press(key); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

// Scroll scrolls vertically by deltaY pixels.
func (p *Page) Scroll(deltaY float64) error {
	if err := p.pw.Mouse().Wheel(0, deltaY); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// GoBack navigates back in history.
func (p *Page) GoBack() error {
	if _, err := p.pw.GoBack(); err != nil {
		return fmt.Errorf("go back failed: %w", err)
	}
	return nil
}

// WaitFor waits until selector reaches state (attached, detached, visible
// or hidden).
func (p *Page) WaitFor(selector, state string, timeoutMs float64) error {
	opts := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		s := playwright.WaitForSelectorState(state)
		opts.State = &s
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	if _, err := p.pw.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Content returns the page HTML.
func (p *Page) Content() (string, error) {
	return p.pw.Content()
}

// URL returns the current URL.
func (p *Page) URL() string {
	return p.pw.URL()
}

// Title returns the document title.
func (p *Page) Title() (string, error) {
	return p.pw.Title()
}

// Screenshot captures the viewport as JPEG.
func (p *Page) Screenshot() ([]byte, error) {
	return p.pw.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(ScreenshotQuality),
	})
}
