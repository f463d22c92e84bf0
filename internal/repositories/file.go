package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileWatchDebounce = 100 * time.Millisecond

// FileKV implements [KVStore] as a single JSON object on disk.
//
// Every write replaces the whole document through a temporary file and a rename, so readers never observe a
// partial write.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV creates a [FileKV] for path. The file is created on first write.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: filepath.Clean(path)}
}

// Path returns the backing document path.
func (f *FileKV) Path() string { return f.path }

func (f *FileKV) GetKeys(_ context.Context, keys ...string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			out[k] = []byte(v)
		}
	}
	return out, nil
}

func (f *FileKV) SetKeys(_ context.Context, entries map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	for k, v := range entries {
		if !json.Valid(v) {
			return fmt.Errorf("value for %s is not valid JSON", k)
		}
		doc[k] = json.RawMessage(append([]byte(nil), v...))
	}
	return f.write(doc)
}

func (f *FileKV) RemoveKeys(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(doc, k)
	}
	return f.write(doc)
}

func (f *FileKV) Close() error { return nil }

// Watch reports changes to the document made by this process or any other writer.
//
// Bursts of filesystem events are coalesced; each delivered [ChangeEvent] names one key whose value differs from
// the previous observation. The channel closes when ctx ends.
func (f *FileKV) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	f.mu.Lock()
	last, err := f.read()
	f.mu.Unlock()
	if err != nil {
		last = map[string]json.RawMessage{}
	}

	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		defer watcher.Close()

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(fileWatchDebounce)
				} else {
					timer.Reset(fileWatchDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				f.mu.Lock()
				current, err := f.read()
				f.mu.Unlock()
				if err != nil {
					continue
				}
				for _, ev := range diffDocuments(last, current) {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
				last = current
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *FileKV) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	doc := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *FileKV) write(doc map[string]json.RawMessage) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

func diffDocuments(before, after map[string]json.RawMessage) []ChangeEvent {
	var events []ChangeEvent
	for _, k := range sortedRawKeys(after) {
		if prev, ok := before[k]; ok && bytes.Equal(prev, after[k]) {
			continue
		}
		events = append(events, ChangeEvent{Key: k, Count: countElements(after[k])})
	}
	for _, k := range sortedRawKeys(before) {
		if _, ok := after[k]; !ok {
			events = append(events, ChangeEvent{Key: k, Count: -1})
		}
	}
	return events
}

func sortedRawKeys(doc map[string]json.RawMessage) []string {
	entries := make(map[string][]byte, len(doc))
	for k, v := range doc {
		entries[k] = v
	}
	return sortedKeys(entries)
}
