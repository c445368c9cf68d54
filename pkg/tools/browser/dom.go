package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

const maxLabelLength = 80

var (
	skippedElements = setOf("script", "style", "noscript", "iframe", "embed", "object", "svg", "template")

	blockElements = setOf("div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr", "td", "th",
		"form", "fieldset", "blockquote", "pre", "br", "hr", "label", "dt", "dd")

	voidElements = setOf("area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta",
		"param", "source", "track", "wbr")

	globalAttributes = setOf("id", "class", "role", "aria-label", "aria-describedby")

	interactiveTags  = setOf("a", "button", "input", "select", "textarea", "summary")
	interactiveRoles = setOf("button", "link", "checkbox", "radio", "tab", "menuitem", "option", "switch", "combobox", "textbox")
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// Element is an interactive element the model can address by index.
type Element struct {
	Index    int
	Tag      string
	Type     string
	Label    string
	Href     string
	Selector string
}

// String renders the element as "[3] <button> Sign in".
func (e Element) String() string {
	tag := e.Tag
	if e.Type != "" {
		tag = fmt.Sprintf("%s type=%s", e.Tag, e.Type)
	}
	s := fmt.Sprintf("[%d] <%s> %s", e.Index, tag, e.Label)
	if e.Href != "" {
		s += " -> " + e.Href
	}
	return strings.TrimRight(s, " ")
}

// dom is what one parse of the page yields.
type dom struct {
	Title       string
	Description string
	Elements    []Element
	Text        string
	Truncated   bool
}

func parseDOM(rawHTML string, maxText int) (*dom, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	text, truncated := visibleText(doc, maxText)
	return &dom{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
		Elements:    interactiveElements(doc),
		Text:        text,
		Truncated:   truncated,
	}, nil
}

// CleanedHTML is page HTML with noise removed and key attributes kept.
type CleanedHTML struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

// cleanHTML strips scripts, styles, comments and non-semantic attributes,
// keeping the structure and the attributes useful for targeting.
func cleanHTML(rawHTML string, maxLength int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &cleanWriter{max: maxLength}
	truncated := w.node(doc, 0)
	return &CleanedHTML{
		HTML:        w.b.String(),
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
		Truncated:   truncated,
	}, nil
}

type cleanWriter struct {
	b   strings.Builder
	n   int
	max int
}

// node writes n and reports whether output was truncated.
func (w *cleanWriter) node(n *html.Node, depth int) bool {
	if w.n >= w.max {
		return true
	}

	switch n.Type {
	case html.CommentNode:
		return false
	case html.TextNode:
		return w.text(n.Data)
	case html.ElementNode:
		if skippedElements[strings.ToLower(n.Data)] {
			return false
		}
		return w.element(n, depth)
	}
	return w.children(n, depth)
}

func (w *cleanWriter) text(data string) bool {
	text := strings.TrimSpace(data)
	if text == "" {
		return false
	}
	if w.n+len(text) > w.max {
		w.b.WriteString(text[:w.max-w.n])
		w.b.WriteString("...")
		w.n = w.max
		return true
	}
	w.b.WriteString(text)
	w.n += len(text)
	return false
}

func (w *cleanWriter) element(n *html.Node, depth int) bool {
	tag := strings.ToLower(n.Data)
	block := blockElements[tag] && tag != "br" && tag != "hr"

	if depth > 0 && block {
		w.indent(depth)
	}
	w.b.WriteString("<" + tag)
	for _, a := range n.Attr {
		if shouldPreserveAttribute(tag, a.Key) {
			fmt.Fprintf(&w.b, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
	}
	w.b.WriteString(">")
	w.n += len(tag) + 2

	truncated := w.children(n, depth+1)

	if !voidElements[tag] {
		if block {
			w.indent(depth)
		}
		w.b.WriteString("</" + tag + ">")
		w.n += len(tag) + 3
	}
	return truncated
}

func (w *cleanWriter) children(n *html.Node, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if w.node(c, depth) {
			return true
		}
	}
	return false
}

func (w *cleanWriter) indent(depth int) {
	w.b.WriteString("\n")
	w.b.WriteString(strings.Repeat("  ", depth))
}

// shouldPreserveAttribute reports whether an attribute helps targeting.
func shouldPreserveAttribute(tagName, attrName string) bool {
	attrName = strings.ToLower(attrName)
	if globalAttributes[attrName] || strings.HasPrefix(attrName, "data-") {
		return true
	}

	switch tagName {
	case "a":
		return attrName == "href" || attrName == "target"
	case "img":
		return attrName == "src" || attrName == "alt"
	case "input", "textarea", "select":
		return attrName == "name" || attrName == "type" || attrName == "placeholder" || attrName == "value"
	case "button":
		return attrName == "type" || attrName == "name"
	case "form":
		return attrName == "action" || attrName == "method"
	case "table":
		return attrName == "summary"
	}
	return false
}

// visibleText collects the document's text with block boundaries as line
// breaks, bounded by limit characters.
func visibleText(doc *html.Node, limit int) (string, bool) {
	var b strings.Builder
	truncated := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if truncated {
			return
		}
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skippedElements[tag] || tag == "head" || isHidden(n) {
				return
			}
			if blockElements[tag] {
				newline(&b)
			}
		}
		if n.Type == html.TextNode {
			if text := collapseSpace(n.Data); text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				if limit > 0 && b.Len()+len(text) > limit {
					if remaining := limit - b.Len(); remaining > 0 {
						b.WriteString(text[:remaining])
					}
					truncated = true
					return
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String()), truncated
}

func newline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
}

// interactiveElements lists the elements a user could click or type into,
// in document order.
func interactiveElements(doc *html.Node) []Element {
	var out []Element

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skippedElements[tag] || tag == "head" || isHidden(n) {
				return
			}
			if isInteractive(n, tag) {
				out = append(out, Element{
					Index:    len(out),
					Tag:      tag,
					Type:     attr(n, "type"),
					Label:    elementLabel(n),
					Href:     attr(n, "href"),
					Selector: cssPath(n),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func isInteractive(n *html.Node, tag string) bool {
	switch {
	case tag == "a":
		return hasAttr(n, "href")
	case tag == "input":
		return attr(n, "type") != "hidden"
	case interactiveTags[tag]:
		return true
	case interactiveRoles[attr(n, "role")]:
		return true
	case hasAttr(n, "onclick"):
		return true
	case attr(n, "contenteditable") == "true":
		return true
	}
	return false
}

func isHidden(n *html.Node) bool {
	if hasAttr(n, "hidden") || attr(n, "aria-hidden") == "true" {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// elementLabel picks the most descriptive human-readable name.
func elementLabel(n *html.Node) string {
	if v := attr(n, "aria-label"); v != "" {
		return truncateLabel(v)
	}
	if text := collapseSpace(textContent(n)); text != "" {
		return truncateLabel(text)
	}
	for _, key := range []string{"placeholder", "value", "alt", "title", "name"} {
		if v := attr(n, key); v != "" {
			return truncateLabel(v)
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// cssPath builds a selector that matches n. An id is used directly; otherwise
// the path is anchored at the nearest ancestor with an id, or at html.
func cssPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		tag := strings.ToLower(cur.Data)
		if id := attr(cur, "id"); id != "" {
			parts = append(parts, fmt.Sprintf(`%s[id="%s"]`, tag, cssEscape(id)))
			break
		}
		if tag == "html" || tag == "body" {
			parts = append(parts, tag)
			if tag == "html" {
				break
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", tag, nthOfType(cur)))
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func nthOfType(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && strings.EqualFold(s.Data, n.Data) {
			idx++
		}
	}
	return idx
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateLabel(s string) string {
	if len(s) <= maxLabelLength {
		return s
	}
	return s[:maxLabelLength] + "..."
}

// extractTitle returns the text of the first <title>.
func extractTitle(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool { return n.Data == "title" })
	if n == nil || n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(n.FirstChild.Data)
}

// extractMetaDescription returns <meta name="description"> content.
func extractMetaDescription(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "meta" && attr(n, "name") == "description" && attr(n, "content") != ""
	})
	if n == nil {
		return ""
	}
	return attr(n, "content")
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}
