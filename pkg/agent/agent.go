// Package agent implements the browser agent that executes one task at a
// time against a single page.
//
// Each step the agent reads the page state, asks the model for exactly one
// XML tool call and executes it. The run ends when the model calls done,
// the step budget is exhausted, too many steps fail in a row, or the agent
// is stopped.
//
//	ag := agent.NewBrowserAgent(provider, session, task,
//	    agent.WithLogger(logger),
//	    agent.WithOutputDir(dir),
//	)
//	history, err := ag.Run(ctx, 30)
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/agent/prompts"
	"github.com/entrhq/pilot/pkg/agent/tools"
	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/llm/tokenizer"
	"github.com/entrhq/pilot/pkg/logging"
	browsertools "github.com/entrhq/pilot/pkg/tools/browser"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	DefaultMaxFailures   = 3
	DefaultMaxStateText  = 4000
	DefaultMemoryWindow  = 40
	pausePollInterval    = 200 * time.Millisecond
	maxStepResultLength  = 2000
	ErrMaxStepsMessage   = "Failed to complete task in maximum steps"
	ErrStoppedMessage    = "Run stopped before completion"
	screenshotNameFormat = "step_%d.jpg"
)

// ErrAlreadyRunning is returned when Run is called on an agent that is
// already running.
var ErrAlreadyRunning = errors.New("agent is already running")

// StepFunc is called after every recorded step.
type StepFunc func(step Step)

// State is a point-in-time view of a run.
type State struct {
	AgentID string
	Stopped bool
	Paused  bool
	Running bool
	NSteps  int
	History *History
}

// IsDone reports whether the model finished the task.
func (s State) IsDone() bool {
	return s.History != nil && s.History.IsDone
}

// BrowserAgent drives one page with an LLM through the browser tools.
type BrowserAgent struct {
	provider           llm.Provider
	session            *browsertools.Session
	logger             *logging.Logger
	tokenizer          *tokenizer.Tokenizer
	customInstructions string
	maxFailures        int
	maxStateText       int
	memoryWindow       int
	onStep             StepFunc

	tools   map[string]tools.Tool
	toolsMu sync.RWMutex

	mu        sync.Mutex
	task      string
	agentID   string
	outputDir string
	memory    *memory.ConversationMemory
	history   *History

	running atomic.Bool
	stopped atomic.Bool
	paused  atomic.Bool
	nSteps  atomic.Int64

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
}

// AgentOption is a function that configures an agent
type AgentOption func(*BrowserAgent)

// WithLogger sets the agent logger.
func WithLogger(l *logging.Logger) AgentOption {
	return func(a *BrowserAgent) {
		a.logger = l
	}
}

// WithTokenizer enables client-side prompt token counting for providers
// that do not report usage.
func WithTokenizer(t *tokenizer.Tokenizer) AgentOption {
	return func(a *BrowserAgent) {
		a.tokenizer = t
	}
}

// WithCustomInstructions appends instructions to the system prompt.
func WithCustomInstructions(instructions string) AgentOption {
	return func(a *BrowserAgent) {
		a.customInstructions = instructions
	}
}

// WithMaxFailures sets how many consecutive failed steps end the run.
func WithMaxFailures(n int) AgentOption {
	return func(a *BrowserAgent) {
		a.maxFailures = n
	}
}

// WithMaxStateText bounds the visible page text sent each step.
func WithMaxStateText(n int) AgentOption {
	return func(a *BrowserAgent) {
		a.maxStateText = n
	}
}

// WithMemoryWindow bounds the conversation kept between steps.
func WithMemoryWindow(n int) AgentOption {
	return func(a *BrowserAgent) {
		a.memoryWindow = n
	}
}

// WithOutputDir sets where step screenshots are written.
func WithOutputDir(dir string) AgentOption {
	return func(a *BrowserAgent) {
		a.outputDir = dir
	}
}

// WithStepCallback registers fn to run after every step.
func WithStepCallback(fn StepFunc) AgentOption {
	return func(a *BrowserAgent) {
		a.onStep = fn
	}
}

// WithTools registers extra tools next to the browser tools.
func WithTools(extra ...tools.Tool) AgentOption {
	return func(a *BrowserAgent) {
		for _, t := range extra {
			a.tools[t.Name()] = t
		}
	}
}

// NewBrowserAgent creates an agent for task on session.
func NewBrowserAgent(provider llm.Provider, session *browsertools.Session, task string, opts ...AgentOption) *BrowserAgent {
	a := &BrowserAgent{
		provider:     provider,
		session:      session,
		task:         task,
		maxFailures:  DefaultMaxFailures,
		maxStateText: DefaultMaxStateText,
		memoryWindow: DefaultMemoryWindow,
		tools:        make(map[string]tools.Tool),
	}

	for _, t := range browsertools.NewToolRegistry(session).RegisterTools() {
		a.tools[t.Name()] = t
	}
	done := tools.NewDoneTool()
	a.tools[done.Name()] = done

	for _, opt := range opts {
		opt(a)
	}

	a.memory = memory.NewConversationMemory(memory.WithWindow(a.memoryWindow))
	a.memory.Add(types.NewUserMessage(prompts.TaskMessage(task)))
	a.memory.Pin()
	a.history = NewHistory(task, "")
	return a
}

// SetAgentID tags the run and its history.
func (a *BrowserAgent) SetAgentID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agentID = id
	a.history.AgentID = id
}

// SetOutputDir changes where step screenshots are written.
func (a *BrowserAgent) SetOutputDir(dir string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputDir = dir
}

// AddNewTask queues a follow-up task on the same page. The conversation is
// kept; history, step count and the stop and pause flags start over.
func (a *BrowserAgent) AddNewTask(task string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.task = task
	a.memory.Add(types.NewUserMessage(prompts.FollowUpMessage(task)))
	a.history = NewHistory(task, a.agentID)
	a.nSteps.Store(0)
	a.stopped.Store(false)
	a.paused.Store(false)
}

// Task returns the current task.
func (a *BrowserAgent) Task() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

// Stop asks the run to end. The current step is interrupted.
func (a *BrowserAgent) Stop() {
	a.stopped.Store(true)
	a.cancelMu.Lock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.cancelMu.Unlock()
}

// Pause holds the run before its next step.
func (a *BrowserAgent) Pause() {
	a.paused.Store(true)
}

// Resume releases a paused run.
func (a *BrowserAgent) Resume() {
	a.paused.Store(false)
}

// Snapshot returns the current run state.
func (a *BrowserAgent) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{
		AgentID: a.agentID,
		Stopped: a.stopped.Load(),
		Paused:  a.paused.Load(),
		Running: a.running.Load(),
		NSteps:  int(a.nSteps.Load()),
		History: a.history.Clone(),
	}
}

// SaveHistory writes the current history to path.
func (a *BrowserAgent) SaveHistory(path string) error {
	a.mu.Lock()
	h := a.history.Clone()
	a.mu.Unlock()
	return h.Save(path)
}

// RenderGIF writes the run recording to path from the step screenshots.
func (a *BrowserAgent) RenderGIF(path string) error {
	a.mu.Lock()
	h := a.history.Clone()
	dir := a.outputDir
	a.mu.Unlock()
	return RenderGIF(path, dir, h)
}

// Run executes steps until the task is done or the run ends otherwise. It
// returns the final history; the error is non-nil only when the run could
// not start.
func (a *BrowserAgent) Run(ctx context.Context, maxSteps int) (*History, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer a.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancelMu.Lock()
	a.cancelRun = cancel
	a.cancelMu.Unlock()
	defer func() {
		a.cancelMu.Lock()
		a.cancelRun = nil
		a.cancelMu.Unlock()
		cancel()
	}()

	a.mu.Lock()
	a.history.StartedAt = time.Now()
	task := a.task
	a.mu.Unlock()

	a.logger.Infof("Starting run for task %q (max %d steps)", task, maxSteps)
	systemPrompt := a.buildSystemPrompt(maxSteps)

	var errorContext string
	failures := 0
	done := false

	for step := 1; step <= maxSteps; step++ {
		if a.stopped.Load() {
			break
		}
		if err := a.waitWhilePaused(runCtx); err != nil {
			break
		}
		if runCtx.Err() != nil {
			break
		}

		result := a.executeStep(runCtx, systemPrompt, step, maxSteps, errorContext)
		a.nSteps.Store(int64(step))

		if result.interrupted {
			break
		}
		errorContext = result.errorContext
		if result.done {
			done = true
			break
		}
		if result.failed {
			failures++
			if failures >= a.maxFailures {
				a.recordError(fmt.Sprintf("Stopping due to %d consecutive failures", failures))
				break
			}
		} else {
			failures = 0
		}
	}

	switch {
	case done:
	case a.stopped.Load() || ctx.Err() != nil:
		a.recordError(ErrStoppedMessage)
	case failures < a.maxFailures:
		a.recordError(ErrMaxStepsMessage)
	}

	a.mu.Lock()
	a.history.DurationSeconds = time.Since(a.history.StartedAt).Seconds()
	h := a.history.Clone()
	a.mu.Unlock()

	a.logger.Infof("Run finished: done=%t success=%t steps=%d errors=%d", h.IsDone, h.Success, len(h.Steps), len(h.Errors))
	return h, nil
}

func (a *BrowserAgent) waitWhilePaused(ctx context.Context) error {
	if !a.paused.Load() {
		return nil
	}
	a.logger.Infof("Run paused")
	ticker := time.NewTicker(pausePollInterval)
	defer ticker.Stop()
	for a.paused.Load() {
		if a.stopped.Load() {
			return context.Canceled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	a.logger.Infof("Run resumed")
	return nil
}

func (a *BrowserAgent) recordError(msg string) {
	a.mu.Lock()
	a.history.AddError(msg)
	a.mu.Unlock()
}

func (a *BrowserAgent) recordStep(s Step) {
	a.mu.Lock()
	a.history.AddStep(s)
	a.mu.Unlock()
	if a.onStep != nil {
		a.onStep(s)
	}
}

func (a *BrowserAgent) finish(result string, success bool) {
	a.mu.Lock()
	a.history.FinalResult = result
	a.history.Success = success
	a.history.IsDone = true
	a.mu.Unlock()
}

// saveScreenshot writes the step screenshot and returns its file name, or
// "" when there is no output directory or the capture failed.
func (a *BrowserAgent) saveScreenshot(step int) string {
	a.mu.Lock()
	dir := a.outputDir
	a.mu.Unlock()
	if dir == "" {
		return ""
	}

	data, err := a.session.Page().Screenshot()
	if err != nil {
		a.logger.Warnf("Screenshot for step %d failed: %v", step, err)
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Warnf("Failed to create screenshot directory: %v", err)
		return ""
	}
	name := fmt.Sprintf(screenshotNameFormat, step)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		a.logger.Warnf("Failed to write %s: %v", name, err)
		return ""
	}
	return name
}
