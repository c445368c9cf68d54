package tui

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

const (
	highlightFormatter = "terminal256"
	highlightStyle     = "monokai"
)

// highlightJSON indents raw JSON and colors it for the terminal. Input that
// cannot be indented or highlighted is returned as text.
func highlightJSON(raw []byte) string {
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return string(raw)
	}
	var out strings.Builder
	if err := quick.Highlight(&out, indented.String(), "json", highlightFormatter, highlightStyle); err != nil {
		return indented.String()
	}
	return out.String()
}
