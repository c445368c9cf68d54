// Package browser provides the tools a browser agent calls to act on a page.
//
// All tools share one Session, which wraps the page the agent drives and
// remembers the interactive elements from the last page snapshot. Tools that
// target an element accept either an index into that list or a CSS selector:
//
//	<tool>
//	<tool_name>click</tool_name>
//	<arguments>
//	  <index>3</index>
//	</arguments>
//	</tool>
//
// The Page interface is satisfied by the Playwright-backed page in
// pkg/browser; tests use an in-memory fake.
//
// # Tools
//
//   - navigate, go_back: move between pages
//   - click, input_text, press_key, scroll, wait: interact with the page
//   - extract_content, search_page: read the page
//
// Snapshots are built from the page HTML with golang.org/x/net/html: hidden
// elements and scripts are dropped, visible text is collected with block
// boundaries as line breaks, and every interactive element gets a stable
// CSS path as its selector.
package browser
