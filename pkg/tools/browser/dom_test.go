package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		wantTitle string
		wantDesc  string
		wantHTML  []string
		wantNot   []string
		truncated bool
	}{
		{
			name: "script and style removal",
			input: `<html>
				<head>
					<title>Test Page</title>
					<meta name="description" content="Test description">
					<script>alert('evil');</script>
					<style>body { color: red; }</style>
				</head>
				<body>
					<h1 id="main-title">Hello World</h1>
					<p class="intro">This is a test.</p>
				</body>
			</html>`,
			maxLength: 10000,
			wantTitle: "Test Page",
			wantDesc:  "Test description",
			wantHTML:  []string{`<h1 id="main-title">`, "Hello World", `<p class="intro">`, "This is a test"},
			wantNot:   []string{"<script>", "alert", "<style>", "color: red"},
		},
		{
			name: "form attributes kept",
			input: `<html><body>
				<form action="/submit" method="post">
					<input type="text" name="username" id="user-input" placeholder="Enter name" data-test="username-field" style="x">
					<button type="submit" class="btn-primary" onclick="go()">Submit</button>
				</form>
			</body></html>`,
			maxLength: 10000,
			wantHTML: []string{
				`<form action="/submit" method="post">`,
				`name="username"`,
				`placeholder="Enter name"`,
				`data-test="username-field"`,
				`class="btn-primary"`,
			},
			wantNot: []string{"style=", "onclick="},
		},
		{
			name: "void elements are not closed",
			input: `<html><body>
				<img src="test.jpg" alt="Test image">
				<br>
				<input type="text" name="field">
			</body></html>`,
			maxLength: 10000,
			wantHTML:  []string{`<img src="test.jpg" alt="Test image">`, "<br>", `<input type="text" name="field">`},
			wantNot:   []string{"</img>", "</br>", "</input>"},
		},
		{
			name: "truncate at boundary",
			input: `<html><body>
				<p>First paragraph with some content.</p>
				<p>Second paragraph with more content.</p>
				<p>Third paragraph that should be truncated.</p>
			</body></html>`,
			maxLength: 100,
			wantHTML:  []string{"First paragraph"},
			truncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := cleanHTML(tt.input, tt.maxLength)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTitle, result.Title)
			assert.Equal(t, tt.wantDesc, result.Description)
			assert.Equal(t, tt.truncated, result.Truncated)
			for _, want := range tt.wantHTML {
				assert.Contains(t, result.HTML, want)
			}
			for _, notWant := range tt.wantNot {
				assert.NotContains(t, result.HTML, notWant)
			}
		})
	}
}

const loginPage = `<html>
<head><title>Login</title><script>var x = 1;</script></head>
<body>
  <nav>
    <a href="/">Home</a>
    <a>No href</a>
    <a href="/help" aria-label="Get help">?</a>
  </nav>
  <form id="login">
    <input type="hidden" name="csrf" value="t">
    <input type="text" name="user" placeholder="Username">
    <input type="password" name="pass">
    <button type="submit">  Sign
      in </button>
  </form>
  <div style="display: none"><button>Hidden</button></div>
  <div role="button">Menu</div>
  <p>Welcome back.</p>
</body>
</html>`

func TestInteractiveElements(t *testing.T) {
	d, err := parseDOM(loginPage, 0)
	require.NoError(t, err)

	var labels []string
	for i, el := range d.Elements {
		assert.Equal(t, i, el.Index)
		labels = append(labels, el.Label)
	}
	assert.Equal(t, []string{"Home", "Get help", "Username", "pass", "Sign in", "Menu"}, labels)

	assert.Equal(t, "html > body > nav:nth-of-type(1) > a:nth-of-type(1)", d.Elements[0].Selector)
	assert.Equal(t, `form[id="login"] > input:nth-of-type(2)`, d.Elements[2].Selector)
	assert.Equal(t, "password", d.Elements[3].Type)
	assert.Equal(t, "/help", d.Elements[1].Href)
	assert.Equal(t, "[4] <button type=submit> Sign in", d.Elements[4].String())
}

func TestVisibleText(t *testing.T) {
	d, err := parseDOM(loginPage, 0)
	require.NoError(t, err)

	assert.Equal(t, "Login", d.Title)
	assert.Contains(t, d.Text, "Welcome back.")
	assert.Contains(t, d.Text, "Sign in")
	assert.NotContains(t, d.Text, "Hidden")
	assert.NotContains(t, d.Text, "var x")
	assert.False(t, d.Truncated)

	short, err := parseDOM(loginPage, 10)
	require.NoError(t, err)
	assert.True(t, short.Truncated)
	assert.LessOrEqual(t, len(short.Text), 10)
}

func TestShouldPreserveAttribute(t *testing.T) {
	tests := []struct {
		tag  string
		attr string
		want bool
	}{
		{"div", "id", true},
		{"div", "class", true},
		{"div", "style", false},
		{"div", "onclick", false},
		{"div", "data-test", true},
		{"a", "href", true},
		{"img", "alt", true},
		{"input", "placeholder", true},
		{"form", "method", true},
		{"span", "href", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"_"+tt.attr, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldPreserveAttribute(tt.tag, tt.attr))
		})
	}
}

func TestSearchText(t *testing.T) {
	text := "Go is fun. go is fast. GO!"
	results := searchText(text, "go", false, 10)
	require.Len(t, results, 3)
	assert.Equal(t, "Go", results[0].Text)
	assert.Equal(t, "GO", results[2].Text)

	assert.Len(t, searchText(text, "go", true, 10), 1)
	assert.Len(t, searchText(text, "go", false, 2), 2)
	assert.Empty(t, searchText(text, "rust", false, 10))
	assert.True(t, strings.Contains(results[1].Context, "go is fast"))
}
