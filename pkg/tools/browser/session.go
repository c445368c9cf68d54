package browser

import (
	"fmt"
	"strings"
	"sync"
)

// Page is the browser surface the tools operate on.
type Page interface {
	Navigate(url string) error
	Click(selector string) error
	Fill(selector, value string) error
	Press(key string) error
	Scroll(deltaY float64) error
	GoBack() error
	WaitFor(selector, state string, timeoutMs float64) error
	Content() (string, error)
	URL() string
	Title() (string, error)
	Screenshot() ([]byte, error)
}

// Session is the page an agent drives plus the elements it last saw on it.
// Element indexes in tool calls refer to the most recent State call.
type Session struct {
	mu       sync.Mutex
	page     Page
	elements []Element
}

// NewSession wraps page.
func NewSession(page Page) *Session {
	return &Session{page: page}
}

// Page returns the underlying page.
func (s *Session) Page() Page {
	return s.page
}

// PageState is a snapshot of the page as presented to the model.
type PageState struct {
	URL         string
	Title       string
	Description string
	Elements    []Element
	Text        string
	Truncated   bool
}

// State reads the page, records its interactive elements and returns a
// snapshot. maxText bounds the visible text included.
func (s *Session) State(maxText int) (*PageState, error) {
	raw, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	dom, err := parseDOM(raw, maxText)
	if err != nil {
		return nil, err
	}

	title, err := s.page.Title()
	if err != nil || title == "" {
		title = dom.Title
	}

	s.mu.Lock()
	s.elements = dom.Elements
	s.mu.Unlock()

	return &PageState{
		URL:         s.page.URL(),
		Title:       title,
		Description: dom.Description,
		Elements:    dom.Elements,
		Text:        dom.Text,
		Truncated:   dom.Truncated,
	}, nil
}

// Resolve turns a tool's index or selector argument into a CSS selector.
// A selector wins when both are given.
func (s *Session) Resolve(index *int, selector string) (string, error) {
	if selector = strings.TrimSpace(selector); selector != "" {
		return selector, nil
	}
	if index == nil {
		return "", fmt.Errorf("either index or selector is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if *index < 0 || *index >= len(s.elements) {
		return "", fmt.Errorf("element index %d out of range (page has %d interactive elements)", *index, len(s.elements))
	}
	return s.elements[*index].Selector, nil
}

// Render formats the state for the model.
func (p *PageState) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current URL: %s\n", p.URL)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}

	b.WriteString("\nInteractive elements:\n")
	if len(p.Elements) == 0 {
		b.WriteString("(none)\n")
	}
	for _, el := range p.Elements {
		b.WriteString(el.String())
		b.WriteString("\n")
	}

	b.WriteString("\nVisible text:\n")
	b.WriteString(p.Text)
	if p.Truncated {
		b.WriteString("\n[Content truncated]")
	}
	return b.String()
}
