// Package orchestrator runs browser-agent tasks one at a time and answers
// status, cancel and result queries about them.
//
// The process owns a single agent slot. Submit takes the slot without
// blocking and a background goroutine holds it until the run's history and
// recording are on disk; each task then resolves a completion channel that
// status polls wait on instead of re-checking the filesystem.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/registry"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	DefaultMaxSteps = 30
	DefaultPollWait = 5 * time.Second
)

// Agent is the run surface the orchestrator drives.
// *agent.BrowserAgent implements it.
type Agent interface {
	Run(ctx context.Context, maxSteps int) (*agent.History, error)
	Stop()
	Pause()
	Resume()
	Snapshot() agent.State
	AddNewTask(task string)
	SetAgentID(id string)
	SetOutputDir(dir string)
	SaveHistory(path string) error
	RenderGIF(path string) error
}

// AgentFactory creates an agent for task together with a release function
// that frees its browser.
type AgentFactory interface {
	NewAgent(ctx context.Context, task string) (Agent, func() error, error)
}

// AgentFactoryFunc adapts a function to AgentFactory.
type AgentFactoryFunc func(ctx context.Context, task string) (Agent, func() error, error)

// NewAgent calls f.
func (f AgentFactoryFunc) NewAgent(ctx context.Context, task string) (Agent, func() error, error) {
	return f(ctx, task)
}

// Options configures an Orchestrator.
type Options struct {
	// ArtifactDir holds agent_history/ and is served under /tmp.
	ArtifactDir string
	MaxSteps    int
	// PollWait bounds how long a status poll waits for a finished run's
	// artifacts.
	PollWait time.Duration
	// PersistentSession keeps the agent and its browser between tasks.
	PersistentSession bool
	Logger            *logging.Logger
	Metrics           *Metrics
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	SessionID string
	TaskID    string
	Message   string
}

// task is one submitted run.
type task struct {
	sessionID string
	taskID    string
	text      string
	dir       string
	submitted time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   atomic.Bool

	mu    sync.Mutex
	agent Agent
	err   error
}

func (t *task) setAgent(a Agent) {
	t.mu.Lock()
	t.agent = a
	t.mu.Unlock()
}

func (t *task) getAgent() Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agent
}

func (t *task) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *task) runErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	registry *registry.Registry
	factory  AgentFactory
	layout   layout
	opts     Options
	logger   *logging.Logger
	metrics  *Metrics
	cache    *historyCache

	slot chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool

	mu      sync.Mutex
	current *task
	agent   Agent
	release func() error
	chat    []*types.Message
}

// New creates an orchestrator. The registry must already be initialized.
func New(reg *registry.Registry, factory AgentFactory, opts Options) (*Orchestrator, error) {
	if reg == nil || reg.State() != registry.StateReady {
		return nil, registry.ErrNotInitialized
	}
	if factory == nil {
		return nil, errors.New("agent factory is required")
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = "./tmp"
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	o := &Orchestrator{
		registry: reg,
		factory:  factory,
		layout:   layout{root: opts.ArtifactDir},
		opts:     opts,
		logger:   opts.Logger,
		metrics:  metrics,
		cache:    newHistoryCache(historyCacheSize),
		slot:     make(chan struct{}, 1),
	}
	o.baseCtx, o.baseCancel = context.WithCancel(context.Background())

	if err := os.MkdirAll(o.layout.historyRoot(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return o, nil
}

// Submit schedules text for execution and returns immediately.
func (o *Orchestrator) Submit(ctx context.Context, text, sessionID string) (*SubmitResult, error) {
	if o.closed.Load() {
		return nil, ErrShuttingDown
	}
	if strings.TrimSpace(text) == "" {
		o.metrics.rejected.WithLabelValues(rejectNoTask).Inc()
		return nil, ErrNoTask
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	select {
	case o.slot <- struct{}{}:
	default:
		o.metrics.rejected.WithLabelValues(rejectBusy).Inc()
		return nil, &TaskRunningError{CurrentSession: o.currentSession()}
	}
	o.metrics.busy.Set(1)

	t := &task{
		sessionID: sessionID,
		taskID:    NewTaskID(),
		text:      text,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}
	t.dir = o.layout.taskDir(t.taskID)

	if err := o.prepare(t); err != nil {
		o.releaseSlot()
		o.metrics.rejected.WithLabelValues(rejectStartup).Inc()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(o.baseCtx)
	t.cancel = cancel

	o.mu.Lock()
	o.current = t
	o.chat = append(o.chat, types.NewUserMessage(text))
	o.mu.Unlock()

	o.metrics.submitted.Inc()
	o.logger.Infof("Queued task %s for session %s: %q", t.taskID, sessionID, text)

	o.wg.Add(1)
	go o.run(runCtx, t)

	return &SubmitResult{
		SessionID: sessionID,
		TaskID:    t.taskID,
		Message:   fmt.Sprintf("Task '%s' has been queued with session ID %s", text, sessionID),
	}, nil
}

// prepare creates the task directory and records the session mapping.
func (o *Orchestrator) prepare(t *task) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	if err := o.registry.AddSessionMapping(t.sessionID, t.taskID); err != nil {
		_ = os.Remove(t.dir)
		return fmt.Errorf("failed to record session mapping: %w", err)
	}
	return nil
}

func (o *Orchestrator) releaseSlot() {
	o.metrics.busy.Set(0)
	<-o.slot
}

// run executes t while holding the agent slot.
func (o *Orchestrator) run(ctx context.Context, t *task) {
	defer o.wg.Done()
	defer close(t.done)
	defer o.releaseSlot()
	defer t.cancel()

	var history *agent.History
	defer func() {
		outcome := outcomeFailed
		switch {
		case t.stopped.Load():
			outcome = outcomeStopped
		case history != nil && history.IsDone && t.runErr() == nil:
			outcome = outcomeCompleted
		}
		o.metrics.finished.WithLabelValues(outcome).Inc()
		o.metrics.taskDuration.Observe(time.Since(t.submitted).Seconds())
		o.logger.Infof("Task %s finished: %s", t.taskID, outcome)
	}()

	ag, err := o.acquireAgent(ctx, t.text)
	if err != nil {
		o.logger.Errorf("Failed to start task %s: %v", t.taskID, err)
		t.setErr(err)
		o.saveStartFailure(t, err)
		return
	}

	ag.SetAgentID(t.sessionID)
	ag.SetOutputDir(t.dir)
	t.setAgent(ag)
	if t.stopped.Load() {
		ag.Stop()
	}

	history, err = ag.Run(ctx, o.opts.MaxSteps)
	if err != nil {
		o.logger.Errorf("Task %s did not run: %v", t.taskID, err)
		t.setErr(err)
	}

	if err := ag.SaveHistory(o.layout.historyPath(t.taskID)); err != nil {
		o.logger.Errorf("Failed to save history for %s: %v", t.taskID, err)
		t.setErr(err)
	}
	if err := ag.RenderGIF(o.layout.gifPath(t.taskID)); err != nil {
		o.logger.Errorf("Failed to render recording for %s: %v", t.taskID, err)
		t.setErr(err)
	}

	if !o.opts.PersistentSession {
		o.closeAgent()
	}
}

// saveStartFailure records a run that never started so Result can report it.
func (o *Orchestrator) saveStartFailure(t *task, err error) {
	h := agent.NewHistory(t.text, t.sessionID)
	if t.stopped.Load() {
		h.AddError(agent.ErrStoppedMessage)
	} else {
		h.AddError(err.Error())
	}
	if err := h.Save(o.layout.historyPath(t.taskID)); err != nil {
		o.logger.Errorf("Failed to save history for %s: %v", t.taskID, err)
	}
}

// acquireAgent reuses the persistent agent or creates a new one.
func (o *Orchestrator) acquireAgent(ctx context.Context, text string) (Agent, error) {
	o.mu.Lock()
	if o.opts.PersistentSession && o.agent != nil {
		ag := o.agent
		o.mu.Unlock()
		ag.AddNewTask(text)
		return ag, nil
	}
	o.mu.Unlock()

	o.closeAgent()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ag, release, err := o.factory.NewAgent(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	o.mu.Lock()
	o.agent = ag
	o.release = release
	o.mu.Unlock()
	return ag, nil
}

// closeAgent forgets the reusable agent and releases its browser. Tasks
// keep their own agent reference so finished runs stay queryable.
func (o *Orchestrator) closeAgent() {
	o.mu.Lock()
	release := o.release
	o.release = nil
	o.agent = nil
	o.mu.Unlock()
	if release == nil {
		return
	}
	if err := release(); err != nil {
		o.logger.Warnf("Failed to close browser: %v", err)
	}
}

// liveTask returns the running task when it belongs to sessionID.
func (o *Orchestrator) liveTask(sessionID string) (*task, error) {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()

	if t == nil || t.finished() {
		return nil, ErrNoActiveTask
	}
	if t.sessionID != sessionID {
		return nil, &SessionMismatchError{Current: t.sessionID, Requested: sessionID}
	}
	return t, nil
}

// Cancel stops the live task for sessionID.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (string, error) {
	t, err := o.liveTask(sessionID)
	if err != nil {
		return "", err
	}

	t.stopped.Store(true)
	if ag := t.getAgent(); ag != nil {
		ag.Stop()
	}
	t.cancel()
	o.metrics.cancelled.Inc()
	o.logger.Infof("Cancelled task %s for session %s", t.taskID, sessionID)
	return fmt.Sprintf("Task with session ID %s has been cancelled", sessionID), nil
}

// Pause holds the live task for sessionID before its next step.
func (o *Orchestrator) Pause(ctx context.Context, sessionID string) (string, error) {
	t, err := o.liveTask(sessionID)
	if err != nil {
		return "", err
	}
	ag := t.getAgent()
	if ag == nil {
		return "", ErrAgentNotStarted
	}
	ag.Pause()
	o.logger.Infof("Paused task %s for session %s", t.taskID, sessionID)
	return fmt.Sprintf("Task with session ID %s has been paused", sessionID), nil
}

// Resume releases a paused task for sessionID.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (string, error) {
	t, err := o.liveTask(sessionID)
	if err != nil {
		return "", err
	}
	ag := t.getAgent()
	if ag == nil {
		return "", ErrAgentNotStarted
	}
	ag.Resume()
	o.logger.Infof("Resumed task %s for session %s", t.taskID, sessionID)
	return fmt.Sprintf("Task with session ID %s has been resumed", sessionID), nil
}

// Wait blocks until the task for sessionID has written its artifacts or ctx
// is done. It returns ErrNoActiveTask when sessionID is not the latest task.
func (o *Orchestrator) Wait(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t == nil || t.sessionID != sessionID {
		return ErrNoActiveTask
	}
	select {
	case <-t.done:
		return t.runErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChatHistory returns the tasks submitted to this process in order.
func (o *Orchestrator) ChatHistory(context.Context) []*types.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*types.Message, len(o.chat))
	copy(out, o.chat)
	return out
}

// Busy reports whether the agent slot is held.
func (o *Orchestrator) Busy() bool {
	return len(o.slot) > 0
}

func (o *Orchestrator) currentSession() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return ""
	}
	return o.current.sessionID
}

// Shutdown stops the live run, waits for it to write its artifacts and
// closes the browser.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t != nil && !t.finished() {
		t.stopped.Store(true)
		if ag := t.getAgent(); ag != nil {
			ag.Stop()
		}
	}
	o.baseCancel()

	waited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.closeAgent()
	return nil
}
