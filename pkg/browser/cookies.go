package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pilot/pkg/logging"
)

// Cookie is one entry of a cookies file, in the format browsers export.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	URL      string   `json:"url,omitempty"`
	Expires  *float64 `json:"expires,omitempty"`
	HTTPOnly *bool    `json:"httpOnly,omitempty"`
	Secure   *bool    `json:"secure,omitempty"`
	SameSite *string  `json:"sameSite,omitempty"`
}

var validSameSite = map[string]bool{"Strict": true, "Lax": true, "None": true}

// LoadCookies reads a JSON cookie array from path. A missing file yields no
// cookies and no error.
func LoadCookies(path string, logger *logging.Logger) ([]Cookie, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		logger.Errorf("Failed to parse cookies file: %v", err)
		return nil, fmt.Errorf("failed to parse cookies file %s: %w", path, err)
	}

	RepairSameSite(cookies, logger)
	logger.Infof("Loaded %d cookies from %s", len(cookies), path)
	return cookies, nil
}

// RepairSameSite rewrites any sameSite value outside Strict, Lax and None to
// None. It returns the number of cookies changed.
func RepairSameSite(cookies []Cookie, logger *logging.Logger) int {
	fixed := 0
	for i := range cookies {
		c := &cookies[i]
		if c.SameSite == nil || validSameSite[*c.SameSite] {
			continue
		}
		logger.Warnf("Fixed invalid sameSite value '%s' to 'None' for cookie %s", *c.SameSite, c.Name)
		none := "None"
		c.SameSite = &none
		fixed++
	}
	return fixed
}

func toPlaywrightCookies(cookies []Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.URL != "" {
			oc.URL = playwright.String(c.URL)
		}
		if c.Domain != "" {
			oc.Domain = playwright.String(c.Domain)
		}
		if c.Path != "" {
			oc.Path = playwright.String(c.Path)
		}
		if c.SameSite != nil {
			switch *c.SameSite {
			case "Strict":
				oc.SameSite = playwright.SameSiteAttributeStrict
			case "Lax":
				oc.SameSite = playwright.SameSiteAttributeLax
			default:
				oc.SameSite = playwright.SameSiteAttributeNone
			}
		}
		out = append(out, oc)
	}
	return out
}
