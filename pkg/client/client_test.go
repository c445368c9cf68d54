package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/server"
	"github.com/entrhq/pilot/pkg/types"
)

const key = "k"

type fakeService struct {
	lastOpts orchestrator.PollOptions
}

func (f *fakeService) Submit(_ context.Context, task, session string) (*orchestrator.SubmitResult, error) {
	if task == "busy" {
		return nil, &orchestrator.TaskRunningError{CurrentSession: "s-0"}
	}
	if session == "" {
		session = "generated"
	}
	return &orchestrator.SubmitResult{SessionID: session, TaskID: "task-1", Message: "queued " + task}, nil
}

func (f *fakeService) Poll(_ context.Context, session string, opts orchestrator.PollOptions) (*orchestrator.Status, error) {
	f.lastOpts = opts
	switch session {
	case "missing":
		return &orchestrator.Status{Status: orchestrator.StatusNotFound, Message: "No active task found"}, nil
	case "broken":
		return nil, errors.New("read failed")
	}
	return &orchestrator.Status{Success: true, Status: orchestrator.StatusCompleted, Steps: 2, SessionID: session}, nil
}

func (f *fakeService) Cancel(_ context.Context, session string) (string, error) {
	if session != "s-1" {
		return "", &orchestrator.SessionMismatchError{Current: "s-1", Requested: session}
	}
	return "Task with session ID s-1 has been cancelled", nil
}

func (f *fakeService) Pause(_ context.Context, session string) (string, error) {
	if session != "s-1" {
		return "", orchestrator.ErrNoActiveTask
	}
	return "Task with session ID s-1 has been paused", nil
}

func (f *fakeService) Resume(_ context.Context, session string) (string, error) {
	if session != "s-1" {
		return "", orchestrator.ErrAgentNotStarted
	}
	return "Task with session ID s-1 has been resumed", nil
}

func (f *fakeService) ChatHistory(context.Context) []*types.Message {
	return []*types.Message{types.NewUserMessage("first"), types.NewUserMessage("second")}
}

func (f *fakeService) Result(_ context.Context, session, _ string) (*orchestrator.ResultBundle, error) {
	if session != "s-1" {
		return nil, &orchestrator.NoResultsError{SessionID: session}
	}
	return &orchestrator.ResultBundle{
		Success:   true,
		SessionID: session,
		Result:    orchestrator.ResultSummary{Text: "Example Domain", Success: true, StepsCompleted: 2},
	}, nil
}

func newClient(t *testing.T, apiKey string) (*Client, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	srv, err := server.New(svc, server.Options{APIKey: key, StaticDir: t.TempDir()})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, apiKey)
	require.NoError(t, err)
	return c, svc
}

func TestHealth(t *testing.T) {
	c, _ := newClient(t, "")
	assert.NoError(t, c.Health(context.Background()))
}

func TestSubmit(t *testing.T) {
	c, _ := newClient(t, key)
	ctx := context.Background()

	sub, err := c.Submit(ctx, "open example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "generated", sub.SessionID)
	assert.Equal(t, "task-1", sub.TaskID)
	assert.Equal(t, "queued open example.com", sub.Message)

	_, err = c.Submit(ctx, "busy", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "s-0", apiErr.CurrentSession)
	assert.Contains(t, apiErr.Message, "Another task is currently running")
}

func TestAuthErrors(t *testing.T) {
	c, _ := newClient(t, "wrong")
	_, err := c.Submit(context.Background(), "x", "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Equal(t, "Invalid API Key", apiErr.Message)
}

func TestStatus(t *testing.T) {
	c, svc := newClient(t, key)
	ctx := context.Background()

	st, err := c.Status(ctx, "s-1", true, false)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.Steps)
	assert.True(t, svc.lastOpts.Detailed)
	assert.False(t, svc.lastOpts.Minimal)

	st, err = c.Status(ctx, "missing", false, true)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusNotFound, st.Status)
	assert.Equal(t, "No active task found", st.Message)
	assert.True(t, svc.lastOpts.Minimal)

	_, err = c.Status(ctx, "broken", false, false)
	assert.EqualError(t, err, "read failed")
}

func TestCancelAndResult(t *testing.T) {
	c, _ := newClient(t, key)
	ctx := context.Background()

	msg, err := c.Cancel(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Task with session ID s-1 has been cancelled", msg)

	_, err = c.Cancel(ctx, "s-2")
	assert.EqualError(t, err, "Session ID mismatch. Current session is s-1, not s-2")

	res, err := c.Result(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", res.Result.Text)
	assert.Equal(t, 2, res.Result.StepsCompleted)

	_, err = c.Result(ctx, "s-2")
	assert.EqualError(t, err, "No results found for session ID: s-2")
}

func TestPauseResumeAndChatHistory(t *testing.T) {
	c, _ := newClient(t, key)
	ctx := context.Background()

	msg, err := c.Pause(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Task with session ID s-1 has been paused", msg)
	_, err = c.Pause(ctx, "s-2")
	assert.EqualError(t, err, "No active task found")

	msg, err = c.Resume(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Task with session ID s-1 has been resumed", msg)
	_, err = c.Resume(ctx, "s-2")
	assert.EqualError(t, err, "Agent has not started yet")

	chat, err := c.ChatHistory(ctx)
	require.NoError(t, err)
	require.Len(t, chat, 2)
	assert.Equal(t, types.RoleUser, chat[0].Role)
	assert.Equal(t, "second", chat[1].Content)
}
