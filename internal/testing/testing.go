// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
)

// MemoryStore is an in-memory record store with injectable failures.
//
// EmptyReads makes Get report an absent namespace, which is what a failed read-after-write verification sees.
type MemoryStore struct {
	mu         sync.Mutex
	data       map[models.Version]models.Snapshot
	failSets   int
	failGets   int
	failRems   int
	emptyReads int

	Sets    int
	Gets    int
	Removes int
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[models.Version]models.Snapshot)}
}

// FailSets makes the next n Set calls fail.
func (m *MemoryStore) FailSets(n int) {
	m.mu.Lock()
	m.failSets = n
	m.mu.Unlock()
}

// FailGets makes the next n Get calls fail.
func (m *MemoryStore) FailGets(n int) {
	m.mu.Lock()
	m.failGets = n
	m.mu.Unlock()
}

// FailRemoves makes the next n Remove calls fail.
func (m *MemoryStore) FailRemoves(n int) {
	m.mu.Lock()
	m.failRems = n
	m.mu.Unlock()
}

// EmptyReads makes the next n Get calls return an absent namespace.
func (m *MemoryStore) EmptyReads(n int) {
	m.mu.Lock()
	m.emptyReads = n
	m.mu.Unlock()
}

// Seed stores snap for v without counting a Set.
func (m *MemoryStore) Seed(v models.Version, snap models.Snapshot) {
	m.mu.Lock()
	m.data[v] = snap.Clone()
	m.mu.Unlock()
}

// Stored returns what is durably stored for v.
func (m *MemoryStore) Stored(v models.Version) (models.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.data[v]
	return snap.Clone(), ok
}

// Counts returns the number of Set, Get and Remove calls so far.
func (m *MemoryStore) Counts() (sets, gets, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sets, m.Gets, m.Removes
}

func (m *MemoryStore) Get(_ context.Context, v models.Version) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.failGets > 0 {
		m.failGets--
		return nil, fmt.Errorf("%w: injected read failure", shared.ErrStorageRead)
	}
	if m.emptyReads > 0 {
		m.emptyReads--
		return nil, nil
	}
	snap, ok := m.data[v]
	if !ok {
		return nil, nil
	}
	out := snap.Clone()
	return &out, nil
}

func (m *MemoryStore) Set(_ context.Context, v models.Version, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.failSets > 0 {
		m.failSets--
		return fmt.Errorf("%w: injected write failure", shared.ErrStorageWrite)
	}
	m.data[v] = snap.Clone()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, v models.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removes++
	if m.failRems > 0 {
		m.failRems--
		return fmt.Errorf("%w: injected remove failure", shared.ErrStorageWrite)
	}
	delete(m.data, v)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// StaticExtractor returns a fixed candidate list on every pass.
type StaticExtractor struct {
	mu      sync.Mutex
	Records []models.UserRecord
	Err     error
	Calls   int
}

func (s *StaticExtractor) Extract(context.Context) ([]models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]models.UserRecord(nil), s.Records...), nil
}

// Set replaces the candidates returned by later passes.
func (s *StaticExtractor) Set(records []models.UserRecord) {
	s.mu.Lock()
	s.Records = append([]models.UserRecord(nil), records...)
	s.mu.Unlock()
}

// Record builds a valid record with a profile link derived from id.
func Record(id, username string) models.UserRecord {
	return models.UserRecord{
		ID:        id,
		Username:  username,
		UserLink:  "https://www.douyin.com/user/" + id,
		Timestamp: 1700000000000,
	}
}

// Records builds n valid records with ids u1..un.
func Records(n int) []models.UserRecord {
	out := make([]models.UserRecord, n)
	for i := range out {
		out[i] = Record(fmt.Sprintf("u%d", i+1), fmt.Sprintf("user %d", i+1))
	}
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
