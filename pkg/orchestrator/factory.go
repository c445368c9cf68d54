package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/llm/tokenizer"
	"github.com/entrhq/pilot/pkg/logging"
	browsertools "github.com/entrhq/pilot/pkg/tools/browser"
)

// BrowserFactory launches a browser per agent through a Playwright driver
// and drives it with the configured LLM provider.
type BrowserFactory struct {
	driver *browser.Driver
	cfg    *config.Config
	logger *logging.Logger
}

// NewBrowserFactory creates a factory. The driver is started lazily.
func NewBrowserFactory(driver *browser.Driver, cfg *config.Config, logger *logging.Logger) *BrowserFactory {
	return &BrowserFactory{driver: driver, cfg: cfg, logger: logger}
}

// NewAgent launches a browser, opens the agent page and builds the agent.
func (f *BrowserFactory) NewAgent(ctx context.Context, task string) (Agent, func() error, error) {
	provider, err := config.BuildProvider(f.cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	if err := f.driver.Start(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	b, err := f.driver.Launch(browser.FromConfig(f.cfg))
	if err != nil {
		return nil, nil, err
	}
	bctx, err := b.NewContext(browser.ContextFromConfig(f.cfg))
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	page, err := bctx.Page()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, nil, fmt.Errorf("failed to open agent page: %w", err)
	}

	tok, err := tokenizer.New()
	if err != nil {
		f.logger.Warnf("Falling back to estimated token counts: %v", err)
	}

	ag := agent.NewBrowserAgent(provider, browsertools.NewSession(page), task,
		agent.WithLogger(f.logger.With("agent")),
		agent.WithTokenizer(tok),
	)
	release := func() error {
		return errors.Join(bctx.Close(), b.Close())
	}
	return ag, release, nil
}
