package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store is the key-value persistence the registry reads and writes. Keypaths
// may be nested with ".".
type Store interface {
	Get(keypath string) (any, bool)
	Set(keypath string, value any) error
	Delete(keypath string) error
	GetAll() map[string]any
	SetAll(values map[string]any, opts SetAllOptions) error
	File() string
}

// SetAllOptions controls SetAll.
type SetAllOptions struct {
	// Prettify writes the file indented.
	Prettify bool
}

// Dir returns the platform config directory for pushrelay.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir, _ = os.UserHomeDir()
	}
	return filepath.Join(dir, "pushrelay")
}

// DefaultPath returns the full path to settings.json.
func DefaultPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// FileStore keeps settings in a JSON file. Every write rewrites the file.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	data      map[string]any
	lastWrite []byte
}

// OpenFileStore loads path. A missing file starts empty; an unreadable or
// corrupt one also starts empty and is replaced on the next write.
func OpenFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{path: path, logger: logger, data: map[string]any{}}
	if data, err := s.read(); err != nil {
		logger.Warn("failed to load settings, using empty store", zap.String("file", path), zap.Error(err))
	} else {
		s.data = data
	}
	return s
}

func (s *FileStore) read() (map[string]any, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// File returns the backing file path.
func (s *FileStore) File() string { return s.path }

// Get returns the value at keypath in its JSON form (float64, string, bool,
// map[string]any, []any).
func (s *FileStore) Get(keypath string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lookup(s.data, splitKeypath(keypath))
}

// Set stores value at keypath, creating intermediate objects.
func (s *FileStore) Set(keypath string, value any) error {
	parts := splitKeypath(keypath)
	if len(parts) == 0 {
		return fmt.Errorf("empty keypath")
	}
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", keypath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, _ := deepCopy(s.data).(map[string]any)
	setPath(next, parts, v)
	return s.saveLocked(next, false)
}

// Delete removes keypath. Deleting a missing key is not an error.
func (s *FileStore) Delete(keypath string) error {
	parts := splitKeypath(keypath)
	if len(parts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, _ := deepCopy(s.data).(map[string]any)
	if !deletePath(next, parts) {
		return nil
	}
	return s.saveLocked(next, false)
}

// GetAll returns a deep copy of every stored value.
func (s *FileStore) GetAll() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, _ := deepCopy(s.data).(map[string]any)
	return out
}

// SetAll replaces the whole store.
func (s *FileStore) SetAll(values map[string]any, opts SetAllOptions) error {
	v, err := normalize(values)
	if err != nil {
		return fmt.Errorf("set all: %w", err)
	}
	data, _ := v.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(data, opts.Prettify)
}

// Keys returns the sorted top-level keys.
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// saveLocked writes next and makes it the current state. On failure the
// previous state stays.
func (s *FileStore) saveLocked(next map[string]any, pretty bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(next, "", "  ")
	} else {
		data, err = json.Marshal(next)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	s.data = next
	s.lastWrite = data
	return nil
}

// Watch reloads the store when the file is changed by another process and
// then calls onChange. It blocks until ctx ends.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	// Watch the directory: writes land through a rename.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", zap.Error(err))
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if s.reload() && onChange != nil {
				onChange()
			}
		}
	}
}

// reload re-reads the file and reports whether it differed from what this
// process last wrote.
func (s *FileStore) reload() bool {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Equal(raw, s.lastWrite) {
		return false
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("ignoring unparsable settings change", zap.Error(err))
		return false
	}
	if data == nil {
		data = map[string]any{}
	}
	s.data = data
	s.lastWrite = raw
	s.logger.Debug("settings reloaded from disk", zap.String("file", s.path))
	return true
}

func splitKeypath(keypath string) []string {
	var parts []string
	for _, p := range strings.Split(keypath, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// setPath stores v at parts, creating intermediate objects.
func setPath(data map[string]any, parts []string, v any) {
	node := data
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = v
}

// deletePath removes parts and reports whether anything was there.
func deletePath(data map[string]any, parts []string) bool {
	node := data
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	if _, ok := node[parts[len(parts)-1]]; !ok {
		return false
	}
	delete(node, parts[len(parts)-1])
	return true
}

func lookup(data map[string]any, parts []string) (any, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	var node any = data
	for _, p := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return deepCopy(node), true
}

// normalize converts a Go value into its JSON form.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// MemoryStore is a Store that never touches disk.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]any{}}
}

func (m *MemoryStore) Get(keypath string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lookup(m.data, splitKeypath(keypath))
}

func (m *MemoryStore) Set(keypath string, value any) error {
	parts := splitKeypath(keypath)
	if len(parts) == 0 {
		return fmt.Errorf("empty keypath")
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	setPath(m.data, parts, v)
	return nil
}

func (m *MemoryStore) Delete(keypath string) error {
	parts := splitKeypath(keypath)
	if len(parts) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	deletePath(m.data, parts)
	return nil
}

func (m *MemoryStore) GetAll() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, _ := deepCopy(m.data).(map[string]any)
	return out
}

func (m *MemoryStore) SetAll(values map[string]any, _ SetAllOptions) error {
	v, err := normalize(values)
	if err != nil {
		return err
	}
	data, _ := v.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

func (m *MemoryStore) File() string { return ":memory:" }
