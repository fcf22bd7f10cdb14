package forum

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SharedStore is a key-value store visible to every client of one user
// agent: the cross-tab channel. Watch callbacks fire for every Set (ok=true)
// and Remove (ok=false) of the key, whichever client made it.
type SharedStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
	Watch(key string, fn func(value string, ok bool)) (cancel func())
}

// ============================================================================
// MemorySharedStore
// ============================================================================

// MemorySharedStore is a goroutine-safe in-process SharedStore. Clients that
// share one instance behave like tabs sharing local storage.
type MemorySharedStore struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[string]map[uint64]func(string, bool)
	nextID   uint64
	log      *zap.Logger
}

// NewMemorySharedStore creates an empty store.
func NewMemorySharedStore() *MemorySharedStore {
	return &MemorySharedStore{
		values:   make(map[string]string),
		watchers: make(map[string]map[uint64]func(string, bool)),
		log:      zap.NewNop(),
	}
}

func (s *MemorySharedStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySharedStore) Set(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	s.emit(key, value, true)
	return nil
}

func (s *MemorySharedStore) Remove(key string) error {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()
	if existed {
		s.emit(key, "", false)
	}
	return nil
}

func (s *MemorySharedStore) Watch(key string, fn func(value string, ok bool)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[uint64]func(string, bool))
	}
	s.watchers[key][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[key], id)
			s.mu.Unlock()
		})
	}
}

func (s *MemorySharedStore) emit(key, value string, ok bool) {
	s.mu.RLock()
	handlers := make([]func(string, bool), 0, len(s.watchers[key]))
	for _, h := range s.watchers[key] {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.log.Error("shared store watcher panicked", zap.String("key", key), zap.Any("panic", p))
				}
			}()
			h(value, ok)
		}()
	}
}

// ============================================================================
// FileSharedStore
// ============================================================================

// DefaultPollInterval is how often FileSharedStore watchers check for changes.
const DefaultPollInterval = 250 * time.Millisecond

// FileSharedStore keeps one file per key in a directory, so separate
// processes of the same user can exchange signals. Every change is also
// appended to a per-key journal that watchers poll, so a Set followed by a
// Remove between two polls is still seen as two changes.
type FileSharedStore struct {
	dir          string
	pollInterval time.Duration
	log          *zap.Logger
}

type journalEntry struct {
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
}

// NewFileSharedStore creates dir if needed. A zero poll uses
// DefaultPollInterval.
func NewFileSharedStore(dir string, poll time.Duration, log *zap.Logger) (*FileSharedStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create shared store dir: %w", err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSharedStore{dir: dir, pollInterval: poll, log: log}, nil
}

func (s *FileSharedStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

func (s *FileSharedStore) journalPath(key string) string {
	return s.path(key) + ".journal"
}

func (s *FileSharedStore) Get(key string) (string, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("read shared key", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return string(data), true
}

func (s *FileSharedStore) Set(key, value string) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write shared key %q: %w", key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write shared key %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write shared key %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write shared key %q: %w", key, err)
	}
	return s.appendJournal(key, journalEntry{Op: "set", Value: value})
}

func (s *FileSharedStore) Remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove shared key %q: %w", key, err)
	}
	return s.appendJournal(key, journalEntry{Op: "remove"})
}

func (s *FileSharedStore) appendJournal(key string, e journalEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	f, err := os.OpenFile(s.journalPath(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open journal for %q: %w", key, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal for %q: %w", key, err)
	}
	return nil
}

// Watch reports changes made after the call, in order.
func (s *FileSharedStore) Watch(key string, fn func(value string, ok bool)) func() {
	offset := s.journalSize(key)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			var entries []journalEntry
			entries, offset = s.readJournal(key, offset)
			for _, e := range entries {
				select {
				case <-stop:
					return
				default:
				}
				fn(e.Value, e.Op == "set")
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }
}

func (s *FileSharedStore) journalSize(key string) int64 {
	fi, err := os.Stat(s.journalPath(key))
	if err != nil {
		return 0
	}
	return fi.Size()
}

// readJournal returns the complete entries past offset and the new offset.
func (s *FileSharedStore) readJournal(key string, offset int64) ([]journalEntry, int64) {
	data, err := os.ReadFile(s.journalPath(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("read shared key journal", zap.String("key", key), zap.Error(err))
		}
		return nil, 0
	}
	if int64(len(data)) < offset {
		offset = 0
	}

	var entries []journalEntry
	rest := data[offset:]
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		var e journalEntry
		if err := json.Unmarshal(rest[:i], &e); err != nil {
			s.log.Warn("skipping journal entry", zap.String("key", key), zap.Error(err))
		} else {
			entries = append(entries, e)
		}
		offset += int64(i + 1)
		rest = rest[i+1:]
	}
	return entries, offset
}
