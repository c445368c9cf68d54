// Package registry holds the process-wide task registry: the console's
// component table with its saved settings, and the persisted mapping from
// session ids to task ids.
//
// A Registry starts uninitialized. Init creates the settings directory and
// loads the session mapping; every other operation fails with
// ErrNotInitialized until then.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/pilot/pkg/logging"
)

// MappingFileName is the session mapping file inside the settings directory.
const MappingFileName = "session_mapping.json"

const configTimeLayout = "20060102_150405"

var (
	ErrNotInitialized   = errors.New("registry is not initialized")
	ErrUnknownComponent = errors.New("unknown component")
	ErrDuplicateID      = errors.New("component id already registered")
)

// State is the lifecycle state of a Registry.
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// Registry is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	state         State
	settingsDir   string
	idToComponent map[string]Component
	componentToID map[Component]string
	sessions      map[string]string

	writeMu sync.Mutex
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock overrides the time source used to name saved settings.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an uninitialized registry rooted at settingsDir.
func New(settingsDir string, opts ...Option) *Registry {
	r := &Registry{
		settingsDir:   settingsDir,
		idToComponent: make(map[string]Component),
		componentToID: make(map[Component]string),
		sessions:      make(map[string]string),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init creates the settings directory and loads the session mapping. It is
// idempotent. A missing or unreadable mapping file leaves the map empty.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReady {
		return nil
	}
	if err := os.MkdirAll(r.settingsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	r.sessions = r.readMapping()
	r.state = StateReady
	r.logger.Infof("Loaded %d session mappings from %s", len(r.sessions), r.MappingPath())
	return nil
}

// State returns the lifecycle state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SettingsDir returns the settings directory.
func (r *Registry) SettingsDir() string {
	return r.settingsDir
}

// MappingPath returns the session mapping file path.
func (r *Registry) MappingPath() string {
	return filepath.Join(r.settingsDir, MappingFileName)
}

func (r *Registry) ready() error {
	if r.state != StateReady {
		return ErrNotInitialized
	}
	return nil
}

// AddComponents registers components under "<tab>.<name>".
func (r *Registry) AddComponents(tab string, components map[string]Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	for name, c := range components {
		id := tab + "." + name
		if existing, ok := r.idToComponent[id]; ok && existing != c {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		r.idToComponent[id] = c
		r.componentToID[c] = id
	}
	return nil
}

// Components returns every registered component ordered by id.
func (r *Registry) Components() ([]Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	ids := r.sortedIDs()
	out := make([]Component, len(ids))
	for i, id := range ids {
		out[i] = r.idToComponent[id]
	}
	return out, nil
}

// ComponentIDs returns every registered id in order.
func (r *Registry) ComponentIDs() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.sortedIDs(), nil
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.idToComponent))
	for id := range r.idToComponent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetComponentByID looks up a component.
func (r *Registry) GetComponentByID(id string) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	c, ok := r.idToComponent[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	return c, nil
}

// GetIDByComponent returns the id of a registered component.
func (r *Registry) GetIDByComponent(c Component) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return "", err
	}
	id, ok := r.componentToID[c]
	if !ok {
		return "", ErrUnknownComponent
	}
	return id, nil
}

// SaveConfig writes the given component values to
// <settings>/config_YYYYmmdd_HHMMSS.json as {id: value} and returns the path.
// Unregistered and non-interactive components are skipped.
func (r *Registry) SaveConfig(values map[Component]any) (string, error) {
	r.mu.RLock()
	if err := r.ready(); err != nil {
		r.mu.RUnlock()
		return "", err
	}
	settings := make(map[string]any, len(values))
	for c, v := range values {
		id, ok := r.componentToID[c]
		if !ok || !c.Interactive() {
			continue
		}
		settings[id] = v
	}
	r.mu.RUnlock()

	path := filepath.Join(r.settingsDir, fmt.Sprintf("config_%s.json", r.now().Format(configTimeLayout)))
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	r.logger.Infof("Saved %d settings to %s", len(settings), path)
	return path, nil
}

// SaveCurrent saves the current value of every interactive component.
func (r *Registry) SaveCurrent() (string, error) {
	r.mu.RLock()
	values := make(map[Component]any, len(r.componentToID))
	for c := range r.componentToID {
		values[c] = c.Value()
	}
	r.mu.RUnlock()
	return r.SaveConfig(values)
}

// LoadConfig reads a settings file, applies each value to its component
// and returns the applied updates. A missing file yields no updates. Ids
// that are no longer registered are skipped with a warning.
func (r *Registry) LoadConfig(path string) (map[Component]any, error) {
	r.mu.RLock()
	if err := r.ready(); err != nil {
		r.mu.RUnlock()
		return nil, err
	}
	r.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[Component]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	updates := make(map[Component]any, len(settings))
	var errs []error
	for id, v := range settings {
		c, err := r.GetComponentByID(id)
		if err != nil {
			r.logger.Warnf("Skipping setting %s: %v", id, err)
			continue
		}
		if err := c.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		updates[c] = v
	}
	return updates, errors.Join(errs...)
}

// ConfigFiles lists saved settings files, newest first.
func (r *Registry) ConfigFiles() ([]string, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(r.settingsDir, "config_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func (r *Registry) checkReady() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready()
}

// AddSessionMapping maps session to task and persists the map.
func (r *Registry) AddSessionMapping(sessionID, taskID string) error {
	r.mu.Lock()
	if err := r.ready(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.sessions[sessionID] = taskID
	r.mu.Unlock()

	r.logger.Infof("Added mapping: %s -> %s", sessionID, taskID)
	return r.persist()
}

// RemoveSessionMapping drops a session and persists the map. Unknown
// sessions are ignored.
func (r *Registry) RemoveSessionMapping(sessionID string) error {
	r.mu.Lock()
	if err := r.ready(); err != nil {
		r.mu.Unlock()
		return err
	}
	if _, ok := r.sessions[sessionID]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	r.logger.Infof("Removed mapping for session: %s", sessionID)
	return r.persist()
}

// GetTaskIDForSession returns the task mapped to session.
func (r *Registry) GetTaskIDForSession(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateReady {
		return "", false
	}
	id, ok := r.sessions[sessionID]
	return id, ok
}

// SessionMappings returns a copy of the session map.
func (r *Registry) SessionMappings() (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	return copyMap(r.sessions), nil
}

// Reload re-reads the mapping file, replacing the in-memory map.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	r.sessions = r.readMapping()
	return nil
}

// readMapping must be called with mu held.
func (r *Registry) readMapping() map[string]string {
	sessions := make(map[string]string)
	data, err := os.ReadFile(r.MappingPath())
	if errors.Is(err, os.ErrNotExist) {
		return sessions
	}
	if err != nil {
		r.logger.Warnf("Error loading session mapping: %v", err)
		return sessions
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return sessions
	}
	if err := json.Unmarshal(data, &sessions); err != nil {
		r.logger.Warnf("Error parsing session mapping: %v", err)
		return make(map[string]string)
	}
	return sessions
}

// persist writes the current map. The snapshot is taken under writeMu so
// the last write always carries the latest map.
func (r *Registry) persist() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	snapshot := copyMap(r.sessions)
	r.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session mapping: %w", err)
	}
	if err := writeFileAtomic(r.MappingPath(), data); err != nil {
		r.logger.Errorf("Error saving session mapping: %v", err)
		return err
	}
	r.logger.Debugf("Saved %d session mappings", len(snapshot))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
