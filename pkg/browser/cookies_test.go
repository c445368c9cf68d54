package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name": "a", "value": "1", "domain": ".example.com", "sameSite": "Lax"},
		{"name": "b", "value": "2", "domain": ".example.com", "sameSite": "no_restriction"},
		{"name": "c", "value": "3", "url": "https://example.com"},
		{"name": "d", "value": "4", "sameSite": "unspecified", "secure": true}
	]`), 0600))

	cookies, err := LoadCookies(path, nil)
	require.NoError(t, err)
	require.Len(t, cookies, 4)

	assert.Equal(t, "Lax", *cookies[0].SameSite)
	assert.Equal(t, "None", *cookies[1].SameSite)
	assert.Nil(t, cookies[2].SameSite)
	assert.Equal(t, "None", *cookies[3].SameSite)
	assert.True(t, *cookies[3].Secure)
}

func TestLoadCookiesMissingAndInvalid(t *testing.T) {
	cookies, err := LoadCookies(filepath.Join(t.TempDir(), "none.json"), nil)
	assert.NoError(t, err)
	assert.Nil(t, cookies)

	cookies, err = LoadCookies("", nil)
	assert.NoError(t, err)
	assert.Nil(t, cookies)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err = LoadCookies(path, nil)
	assert.Error(t, err)
}

func TestRepairSameSiteCount(t *testing.T) {
	bad, strict := "weird", "Strict"
	cookies := []Cookie{{Name: "x", SameSite: &bad}, {Name: "y", SameSite: &strict}, {Name: "z"}}
	assert.Equal(t, 1, RepairSameSite(cookies, nil))
	assert.Equal(t, 0, RepairSameSite(cookies, nil))
}

func TestToPlaywrightCookies(t *testing.T) {
	lax, none := "Lax", "None"
	out := toPlaywrightCookies([]Cookie{
		{Name: "a", Value: "1", Domain: ".example.com", Path: "/", SameSite: &lax},
		{Name: "b", Value: "2", URL: "https://example.com", SameSite: &none},
	})
	require.Len(t, out, 2)

	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, ".example.com", *out[0].Domain)
	assert.Equal(t, "/", *out[0].Path)
	assert.Nil(t, out[0].URL)
	assert.Equal(t, playwright.SameSiteAttributeLax, out[0].SameSite)

	assert.Equal(t, "https://example.com", *out[1].URL)
	assert.Equal(t, playwright.SameSiteAttributeNone, out[1].SameSite)
}
