package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/llm"
	browsertools "github.com/entrhq/pilot/pkg/tools/browser"
	"github.com/entrhq/pilot/pkg/types"
)

// scriptedProvider replays responses in order, repeating the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	usage     *types.TokenUsage
	block     bool
	calls     int
	seen      [][]*types.Message
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	p.mu.Lock()
	p.seen = append(p.seen, messages)
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	block := p.block
	usage := p.usage
	p.mu.Unlock()

	ch := make(chan *llm.StreamChunk, 3)
	if block {
		go func() {
			defer close(ch)
			<-ctx.Done()
			ch <- &llm.StreamChunk{Error: ctx.Err()}
		}()
		return ch, nil
	}
	ch <- &llm.StreamChunk{Type: llm.ContentTypeThinking, Content: "considering"}
	ch <- &llm.StreamChunk{Role: "assistant", Content: p.responses[idx]}
	ch <- &llm.StreamChunk{Usage: usage, Finished: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, *types.TokenUsage, error) {
	return types.NewAssistantMessage(""), nil, nil
}

func (p *scriptedProvider) GetModelInfo() *types.ModelInfo { return &types.ModelInfo{Name: "scripted"} }
func (p *scriptedProvider) GetModel() string               { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubPage struct {
	mu      sync.Mutex
	url     string
	visited []string
	jpg     []byte
}

const stubHTML = `<html><head><title>Example</title></head><body>
<h1>Welcome</h1><a href="/more">More info</a><p>Pricing starts at $10.</p></body></html>`

func newStubPage(t *testing.T) *stubPage {
	img := image.NewRGBA(image.Rect(0, 0, 1200, 600))
	for x := 0; x < 1200; x++ {
		img.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return &stubPage{url: "about:blank", jpg: buf.Bytes()}
}

func (p *stubPage) Navigate(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.visited = append(p.visited, url)
	return nil
}
func (p *stubPage) Click(string) error                    { return nil }
func (p *stubPage) Fill(string, string) error             { return nil }
func (p *stubPage) Press(string) error                    { return nil }
func (p *stubPage) Scroll(float64) error                  { return nil }
func (p *stubPage) GoBack() error                         { return nil }
func (p *stubPage) WaitFor(string, string, float64) error { return nil }
func (p *stubPage) Content() (string, error)              { return stubHTML, nil }
func (p *stubPage) Title() (string, error)                { return "Example", nil }
func (p *stubPage) Screenshot() ([]byte, error)           { return p.jpg, nil }
func (p *stubPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

const (
	navigateCall = `<thinking>Open the site.</thinking>
<tool><server_name>local</server_name><tool_name>navigate</tool_name><arguments><url>https://example.com</url></arguments></tool>`
	doneCall = `<tool><tool_name>done</tool_name><arguments><result>Pricing starts at $10.</result></arguments></tool>`
	scrollCall = `<tool><tool_name>scroll</tool_name><arguments><direction>down</direction></arguments></tool>`
)

func newTestAgent(t *testing.T, provider llm.Provider, opts ...AgentOption) (*BrowserAgent, *stubPage, string) {
	t.Helper()
	page := newStubPage(t)
	dir := t.TempDir()
	opts = append([]AgentOption{WithOutputDir(dir)}, opts...)
	ag := NewBrowserAgent(provider, browsertools.NewSession(page), "find the price", opts...)
	return ag, page, dir
}

func TestRunCompletesTask(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{navigateCall, doneCall},
		usage:     &types.TokenUsage{PromptTokens: 100},
	}
	var stepped []int
	ag, page, dir := newTestAgent(t, provider, WithStepCallback(func(s Step) { stepped = append(stepped, s.StepNumber) }))
	ag.SetAgentID("session-1")

	h, err := ag.Run(context.Background(), 30)
	require.NoError(t, err)

	assert.True(t, h.IsDone)
	assert.True(t, h.Success)
	assert.Equal(t, "Pricing starts at $10.", h.FinalResult)
	assert.Equal(t, "session-1", h.AgentID)
	assert.Empty(t, h.Errors)
	assert.Equal(t, 200, h.TotalTokens)
	assert.Equal(t, []int{1, 2}, stepped)
	assert.Equal(t, []string{"https://example.com"}, page.visited)

	require.Len(t, h.Steps, 2)
	first := h.Steps[0]
	assert.Equal(t, `navigate(url="https://example.com")`, first.Action)
	assert.Equal(t, map[string]interface{}{"url": "https://example.com"}, first.Params)
	assert.Equal(t, StepCompleted, first.Status)
	assert.Equal(t, "about:blank", first.URL)
	assert.Equal(t, "Example", first.Title)
	assert.Equal(t, "step_1.jpg", first.Screenshot)
	assert.Contains(t, first.Thinking, "considering")
	assert.Contains(t, first.Thinking, "Open the site.")
	assert.Equal(t, "https://example.com", h.Steps[1].URL)

	assert.FileExists(t, filepath.Join(dir, "step_1.jpg"))
	assert.FileExists(t, filepath.Join(dir, "step_2.jpg"))

	state := ag.Snapshot()
	assert.True(t, state.IsDone())
	assert.Equal(t, 2, state.NSteps)
	assert.False(t, state.Running)

	// the second prompt carries the tool result and the new state
	require.Len(t, provider.seen, 2)
	last := provider.seen[1]
	assert.Contains(t, last[len(last)-2].Content, "Tool 'navigate' result")
	assert.Contains(t, last[len(last)-1].Content, `step="2/30"`)
}

func TestSaveHistoryAndGIF(t *testing.T) {
	provider := &scriptedProvider{responses: []string{navigateCall, doneCall}}
	ag, _, dir := newTestAgent(t, provider)
	_, err := ag.Run(context.Background(), 5)
	require.NoError(t, err)

	historyPath := filepath.Join(dir, "task.json")
	gifPath := filepath.Join(dir, "task.gif")
	require.NoError(t, ag.SaveHistory(historyPath))
	require.NoError(t, ag.RenderGIF(gifPath))

	data, err := os.ReadFile(historyPath)
	require.NoError(t, err)
	var loaded History
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "find the price", loaded.Task)
	assert.Len(t, loaded.Steps, 2)
	assert.True(t, loaded.IsDone)

	f, err := os.Open(gifPath)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 3)
	assert.Equal(t, 800, anim.Image[0].Bounds().Dx())
	assert.Equal(t, 400, anim.Image[1].Bounds().Dy())
}

func TestRenderGIFWithoutScreenshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.gif")
	h := NewHistory("a very long task description that needs to wrap across several lines of the title frame", "")
	h.AddStep(Step{StepNumber: 1, Screenshot: "missing.jpg"})

	require.NoError(t, RenderGIF(path, t.TempDir(), h))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 1)
}

func TestRunMaxSteps(t *testing.T) {
	provider := &scriptedProvider{responses: []string{scrollCall}}
	ag, _, _ := newTestAgent(t, provider)

	h, err := ag.Run(context.Background(), 3)
	require.NoError(t, err)

	assert.False(t, h.IsDone)
	assert.Len(t, h.Steps, 3)
	assert.Equal(t, []string{ErrMaxStepsMessage}, h.Errors)
}

func TestRunConsecutiveFailures(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"I am not sure what to do."}}
	ag, _, _ := newTestAgent(t, provider, WithMaxFailures(2))

	h, err := ag.Run(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, h.Steps, 2)
	assert.Equal(t, StepFailed, h.Steps[0].Status)
	assert.Equal(t, "response contained no tool call", h.Steps[0].Error)
	assert.Contains(t, h.Errors, "Stopping due to 2 consecutive failures")
	assert.NotContains(t, h.Errors, ErrMaxStepsMessage)

	// the failure is explained to the model on the next step
	second := provider.seen[1]
	assert.Contains(t, second[len(second)-2].Content, "did not contain a tool call")
}

func TestRunRecoversFromUnknownTool(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`<tool><tool_name>teleport</tool_name></tool>`,
		doneCall,
	}}
	ag, _, _ := newTestAgent(t, provider)

	h, err := ag.Run(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, h.Steps, 2)
	assert.Equal(t, "unknown tool: teleport", h.Steps[0].Error)
	assert.True(t, h.IsDone)
	assert.Equal(t, []string{"unknown tool: teleport"}, h.Errors)
}

func TestStopInterruptsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []string{doneCall}, block: true}
	ag, _, _ := newTestAgent(t, provider)

	done := make(chan *History, 1)
	go func() {
		h, _ := ag.Run(context.Background(), 30)
		done <- h
	}()

	require.Eventually(t, func() bool { return provider.callCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	ag.Stop()

	select {
	case h := <-done:
		assert.False(t, h.IsDone)
		assert.Contains(t, h.Errors, ErrStoppedMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.True(t, ag.Snapshot().Stopped)
}

func TestPauseAndResume(t *testing.T) {
	provider := &scriptedProvider{responses: []string{doneCall}}
	ag, _, _ := newTestAgent(t, provider)
	ag.Pause()

	done := make(chan *History, 1)
	go func() {
		h, _ := ag.Run(context.Background(), 30)
		done <- h
	}()

	require.Eventually(t, func() bool { return ag.Snapshot().Running }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, ag.Snapshot().Paused)
	assert.Equal(t, 0, provider.callCount())

	ag.Resume()
	select {
	case h := <-done:
		assert.True(t, h.IsDone)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not resume")
	}
}

func TestAddNewTask(t *testing.T) {
	provider := &scriptedProvider{responses: []string{doneCall}}
	ag, _, _ := newTestAgent(t, provider)
	ag.SetAgentID("s1")

	_, err := ag.Run(context.Background(), 5)
	require.NoError(t, err)
	ag.Stop()

	ag.AddNewTask("now find the contact email")
	state := ag.Snapshot()
	assert.False(t, state.Stopped)
	assert.False(t, state.IsDone())
	assert.Equal(t, 0, state.NSteps)
	assert.Equal(t, "now find the contact email", state.History.Task)
	assert.Equal(t, "s1", state.History.AgentID)
	assert.Equal(t, "now find the contact email", ag.Task())

	h, err := ag.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, h.IsDone)

	second := provider.seen[len(provider.seen)-1]
	assert.Contains(t, second[1].Content, "find the price")
	found := false
	for _, m := range second {
		if bytes.Contains([]byte(m.Content), []byte("<follow_up_task>")) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	provider := &scriptedProvider{responses: []string{doneCall}, block: true}
	ag, _, _ := newTestAgent(t, provider)

	go func() { _, _ = ag.Run(context.Background(), 30) }()
	require.Eventually(t, func() bool { return ag.Snapshot().Running }, 2*time.Second, 10*time.Millisecond)

	_, err := ag.Run(context.Background(), 30)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	ag.Stop()
}
