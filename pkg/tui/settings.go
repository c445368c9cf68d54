package tui

import (
	"errors"
	"fmt"

	"github.com/entrhq/pilot/pkg/registry"
)

// settingsTab is the registry tab the console registers its fields under.
const settingsTab = "console"

// settings are the console's persisted knobs.
type settings struct {
	sessionID    *registry.Field
	detailed     *registry.Field
	minimal      *registry.Field
	pollInterval *registry.Field
	serverURL    *registry.Field
}

func newSettings(serverURL string) *settings {
	return &settings{
		sessionID: registry.NewField("textbox", ""),
		detailed:  registry.NewField("checkbox", false),
		minimal:   registry.NewField("checkbox", false),
		pollInterval: registry.NewField("number", defaultPollSeconds, registry.WithValidator(func(v any) error {
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("expected a number, got %T", v)
			}
			if f < 0.2 || f > 60 {
				return errors.New("poll interval must be between 0.2 and 60 seconds")
			}
			return nil
		})),
		serverURL: registry.NewField("textbox", serverURL, registry.ReadOnly()),
	}
}

func (s *settings) components() map[string]registry.Component {
	return map[string]registry.Component{
		"session_id":    s.sessionID,
		"detailed":      s.detailed,
		"minimal":       s.minimal,
		"poll_interval": s.pollInterval,
		"server_url":    s.serverURL,
	}
}

func (s *settings) pollSeconds() float64 {
	f, ok := s.pollInterval.Value().(float64)
	if !ok {
		return defaultPollSeconds
	}
	return f
}

// loadLatest applies the newest saved settings file and returns its path,
// or "" when nothing has been saved yet.
func loadLatest(reg *registry.Registry) (string, error) {
	files, err := reg.ConfigFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	if _, err := reg.LoadConfig(files[0]); err != nil {
		return files[0], err
	}
	return files[0], nil
}
