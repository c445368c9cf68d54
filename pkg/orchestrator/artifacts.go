package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/entrhq/pilot/pkg/agent"
)

const (
	// HistoryDirName is the task directory root under the artifact dir.
	HistoryDirName = "agent_history"
	// StaticPrefix is the URL prefix the artifact dir is served under.
	StaticPrefix = "/tmp"

	historyCacheSize = 64
)

var screenshotPattern = glob.MustCompile("step_*.jpg")

// Resource is an artifact file with its public URL.
type Resource struct {
	LocalPath string `json:"local_path"`
	URL       string `json:"url"`
}

// Screenshot is a step screenshot resource.
type Screenshot struct {
	Step      string `json:"step"`
	LocalPath string `json:"local_path"`
	URL       string `json:"url"`
}

// Resources lists the artifacts present for a task.
type Resources struct {
	HistoryJSON  *Resource    `json:"history_json,omitempty"`
	RecordingGIF *Resource    `json:"recording_gif,omitempty"`
	Screenshots  []Screenshot `json:"screenshots,omitempty"`
}

// layout resolves file locations for tasks under one artifact root.
type layout struct {
	root string
}

func (l layout) historyRoot() string {
	return filepath.Join(l.root, HistoryDirName)
}

func (l layout) taskDir(taskID string) string {
	return filepath.Join(l.historyRoot(), taskID)
}

func (l layout) historyPath(taskID string) string {
	return filepath.Join(l.taskDir(taskID), taskID+".json")
}

func (l layout) gifPath(taskID string) string {
	return filepath.Join(l.taskDir(taskID), taskID+".gif")
}

func (l layout) url(baseURL, taskID, name string) string {
	return strings.TrimRight(baseURL, "/") + StaticPrefix + "/" + HistoryDirName + "/" + taskID + "/" + name
}

// resources collects whichever artifacts exist for taskID.
func (l layout) resources(baseURL, taskID string) Resources {
	var res Resources
	if fileExists(l.historyPath(taskID)) {
		res.HistoryJSON = &Resource{
			LocalPath: l.historyPath(taskID),
			URL:       l.url(baseURL, taskID, taskID+".json"),
		}
	}
	if fileExists(l.gifPath(taskID)) {
		res.RecordingGIF = &Resource{
			LocalPath: l.gifPath(taskID),
			URL:       l.url(baseURL, taskID, taskID+".gif"),
		}
	}
	res.Screenshots = l.screenshots(baseURL, taskID)
	return res
}

// screenshots lists step_<n>.jpg files ordered by step number.
func (l layout) screenshots(baseURL, taskID string) []Screenshot {
	dir := l.taskDir(taskID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	type numbered struct {
		n    int
		name string
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() || !screenshotPattern.Match(e.Name()) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(e.Name(), "step_"), ".jpg"))
		if err != nil {
			continue
		}
		files = append(files, numbered{n: n, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	out := make([]Screenshot, 0, len(files))
	for _, f := range files {
		out = append(out, Screenshot{
			Step:      strconv.Itoa(f.n),
			LocalPath: filepath.Join(dir, f.name),
			URL:       l.url(baseURL, taskID, f.name),
		})
	}
	return out
}

// latestTaskID returns the most recently modified task directory.
func (l layout) latestTaskID() (string, bool) {
	entries, err := os.ReadDir(l.historyRoot())
	if err != nil {
		return "", false
	}
	var (
		latest   string
		latestAt time.Time
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest, latestAt = e.Name(), info.ModTime()
		}
	}
	return latest, latest != ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// errHistoryMissing marks a history file that does not exist yet.
var errHistoryMissing = errors.New("history file does not exist")

type cachedHistory struct {
	modTime time.Time
	size    int64
	history *agent.History
	raw     json.RawMessage
}

// historyCache memoizes parsed history files keyed by path, invalidated
// by modification time and size.
type historyCache struct {
	entries *lru.Cache[string, cachedHistory]
}

func newHistoryCache(size int) *historyCache {
	if size <= 0 {
		size = historyCacheSize
	}
	entries, err := lru.New[string, cachedHistory](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &historyCache{entries: entries}
}

// load returns the parsed history and its raw bytes.
func (c *historyCache) load(path string) (*agent.History, json.RawMessage, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, errHistoryMissing
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat history: %w", err)
	}

	if hit, ok := c.entries.Get(path); ok && hit.modTime.Equal(info.ModTime()) && hit.size == info.Size() {
		return hit.history.Clone(), hit.raw, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read history: %w", err)
	}
	var h agent.History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, nil, err
	}
	raw := json.RawMessage(data)
	c.entries.Add(path, cachedHistory{modTime: info.ModTime(), size: info.Size(), history: &h, raw: raw})
	return h.Clone(), raw, nil
}
