package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReady(t *testing.T) *Registry {
	t.Helper()
	r := New(filepath.Join(t.TempDir(), "webui_settings"))
	require.NoError(t, r.Init())
	return r
}

func TestUninitializedRegistry(t *testing.T) {
	r := New(t.TempDir())
	assert.Equal(t, StateUninitialized, r.State())

	assert.ErrorIs(t, r.AddSessionMapping("s", "t"), ErrNotInitialized)
	assert.ErrorIs(t, r.RemoveSessionMapping("s"), ErrNotInitialized)
	assert.ErrorIs(t, r.AddComponents("tab", nil), ErrNotInitialized)
	assert.ErrorIs(t, r.Reload(), ErrNotInitialized)
	_, err := r.SessionMappings()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.SaveConfig(nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.LoadConfig("x.json")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, ok := r.GetTaskIDForSession("s")
	assert.False(t, ok)

	require.NoError(t, r.Init())
	require.NoError(t, r.Init())
	assert.Equal(t, StateReady, r.State())
	assert.Equal(t, "ready", r.State().String())
}

func TestSessionMappingPersistence(t *testing.T) {
	r := newReady(t)

	require.NoError(t, r.AddSessionMapping("s1", "task-1"))
	require.NoError(t, r.AddSessionMapping("s2", "task-2"))
	require.NoError(t, r.RemoveSessionMapping("s2"))
	require.NoError(t, r.RemoveSessionMapping("unknown"))

	id, ok := r.GetTaskIDForSession("s1")
	require.True(t, ok)
	assert.Equal(t, "task-1", id)
	_, ok = r.GetTaskIDForSession("s2")
	assert.False(t, ok)

	data, err := os.ReadFile(r.MappingPath())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"s1\": \"task-1\"\n}", string(data))

	// a fresh registry on the same directory sees the same map
	reopened := New(r.SettingsDir())
	require.NoError(t, reopened.Init())
	m, err := reopened.SessionMappings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "task-1"}, m)
}

func TestCorruptMappingLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MappingFileName), []byte("{not json"), 0o644))

	r := New(dir)
	require.NoError(t, r.Init())
	m, err := r.SessionMappings()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestConcurrentMappingWrites(t *testing.T) {
	r := newReady(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.AddSessionMapping(string(rune('a'+i)), "task"))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(r.MappingPath())
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, 20)
}

func TestComponents(t *testing.T) {
	r := newReady(t)
	task := NewField("textbox", "")
	headless := NewField("checkbox", true)

	require.NoError(t, r.AddComponents("agent", map[string]Component{"task": task}))
	require.NoError(t, r.AddComponents("browser", map[string]Component{"headless": headless}))
	require.NoError(t, r.AddComponents("agent", map[string]Component{"task": task}))
	err := r.AddComponents("agent", map[string]Component{"task": NewField("textbox", "")})
	assert.ErrorIs(t, err, ErrDuplicateID)

	got, err := r.GetComponentByID("browser.headless")
	require.NoError(t, err)
	assert.Same(t, headless, got)

	id, err := r.GetIDByComponent(task)
	require.NoError(t, err)
	assert.Equal(t, "agent.task", id)

	_, err = r.GetComponentByID("nope")
	assert.ErrorIs(t, err, ErrUnknownComponent)
	_, err = r.GetIDByComponent(NewField("x", nil))
	assert.ErrorIs(t, err, ErrUnknownComponent)

	ids, err := r.ComponentIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"agent.task", "browser.headless"}, ids)

	all, err := r.Components()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSaveAndLoadConfig(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	r := New(t.TempDir(), WithClock(func() time.Time { return fixed }))
	require.NoError(t, r.Init())

	model := NewField("dropdown", "gpt-4o")
	steps := NewField("number", float64(30))
	status := NewField("markdown", "idle", ReadOnly())
	require.NoError(t, r.AddComponents("agent", map[string]Component{
		"model": model, "max_steps": steps, "status": status,
	}))

	path, err := r.SaveConfig(map[Component]any{
		model:                        "gpt-4o-mini",
		steps:                        float64(10),
		status:                       "busy",
		NewField("orphan", "ignored"): "x",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.SettingsDir(), "config_20250304_050607.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, map[string]any{"agent.model": "gpt-4o-mini", "agent.max_steps": float64(10)}, saved)

	updates, err := r.LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
	assert.Equal(t, "gpt-4o-mini", model.String())
	assert.Equal(t, float64(10), steps.Value())
	assert.Equal(t, "idle", status.String())

	files, err := r.ConfigFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)

	updates, err = r.LoadConfig(filepath.Join(r.SettingsDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestSaveCurrentAndValidation(t *testing.T) {
	r := newReady(t)
	mustBool := func(v any) error {
		if _, ok := v.(bool); !ok {
			return errors.New("not a bool")
		}
		return nil
	}
	headless := NewField("checkbox", false, WithValidator(mustBool))
	require.NoError(t, r.AddComponents("browser", map[string]Component{"headless": headless}))

	require.NoError(t, headless.SetValue(true))
	assert.True(t, headless.Bool())
	assert.Error(t, headless.SetValue("yes"))

	path, err := r.SaveCurrent()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"browser.headless": "no", "gone.field": 1}`), 0o644))
	_, err = r.LoadConfig(path)
	assert.Error(t, err)
	assert.True(t, headless.Bool())

	require.NoError(t, os.WriteFile(path, []byte(`[`), 0o644))
	_, err = r.LoadConfig(path)
	assert.Error(t, err)
}

func TestWatchReloadsExternalChanges(t *testing.T) {
	r := newReady(t)
	require.NoError(t, r.AddSessionMapping("s1", "task-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 10)
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Watch(ctx, 20*time.Millisecond, func() { reloaded <- struct{}{} })
	}()

	// another process rewrites the mapping
	other := New(r.SettingsDir())
	require.NoError(t, other.Init())
	require.Eventually(t, func() bool {
		_ = other.AddSessionMapping("s2", "task-2")
		select {
		case <-reloaded:
			return true
		default:
			return false
		}
	}, 3*time.Second, 50*time.Millisecond)

	id, ok := r.GetTaskIDForSession("s2")
	assert.True(t, ok)
	assert.Equal(t, "task-2", id)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestWatchRequiresInit(t *testing.T) {
	r := New(t.TempDir())
	assert.ErrorIs(t, r.Watch(context.Background(), 0, nil), ErrNotInitialized)
}
