package browser

import (
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pilot/pkg/logging"
)

// Context is an isolated browser context and the page the agent works in.
type Context struct {
	mu      sync.Mutex
	pc      playwright.BrowserContext
	id      string
	cfg     ContextConfig
	owned   bool
	tracing bool
	page    *Page
	logger  *logging.Logger
}

func newContext(pc playwright.BrowserContext, id string, cc ContextConfig, owned bool, logger *logging.Logger) *Context {
	return &Context{pc: pc, id: id, cfg: cc, owned: owned, logger: logger}
}

// ID identifies the context; trace files are named after it.
func (c *Context) ID() string {
	return c.id
}

// Page returns the page the agent drives, opening one when needed.
func (c *Context) Page() (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != nil && !c.page.pw.IsClosed() {
		return c.page, nil
	}

	var pp playwright.Page
	if pages := c.pc.Pages(); len(pages) > 0 {
		pp = pages[len(pages)-1]
	} else {
		var err error
		pp, err = c.pc.NewPage()
		if err != nil {
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}
	pp.SetDefaultTimeout(DefaultTimeout)
	c.page = &Page{pw: pp}
	return c.page, nil
}

// Close stops tracing and, if this context was created here, closes it.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracing {
		c.tracing = false
		if err := ensureDir(c.cfg.TracePath); err != nil {
			c.logger.Warnf("Failed to create trace dir: %v", err)
		}
		path := traceFile(c.cfg.TracePath, c.id)
		if err := c.pc.Tracing().Stop(path); err != nil {
			c.logger.Warnf("Failed to save trace: %v", err)
		} else {
			c.logger.Infof("Saved trace to %s", path)
		}
	}

	c.page = nil
	if !c.owned {
		return nil
	}
	return c.pc.Close()
}
