package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
)

var errClosed = errors.New("store is closed")

// KVStore is the durable key/value area backing a [RecordStore].
//
// SetKeys and RemoveKeys apply all entries in one atomic unit. GetKeys omits keys that do not exist.
type KVStore interface {
	GetKeys(ctx context.Context, keys ...string) (map[string][]byte, error)
	SetKeys(ctx context.Context, entries map[string][]byte) error
	RemoveKeys(ctx context.Context, keys ...string) error
	Close() error
}

// ChangeEvent reports a durable change to one key.
//
// Count is the number of array elements now stored under Key, or -1 when the key was removed.
type ChangeEvent struct {
	Key   string
	Count int
}

// Watcher is implemented by backends that can report changes made by any writer.
type Watcher interface {
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// RecordStore persists one [models.Snapshot] per version.
type RecordStore interface {
	// Get returns nil, nil when the version has never been written or was removed.
	Get(ctx context.Context, version models.Version) (*models.Snapshot, error)
	Set(ctx context.Context, version models.Version, snap models.Snapshot) error
	Remove(ctx context.Context, version models.Version) error
	Close() error
}

// SnapshotRepository implements [RecordStore] over a [KVStore].
type SnapshotRepository struct {
	kv KVStore
}

// NewSnapshotRepository creates a new [SnapshotRepository] with the given key/value backend
func NewSnapshotRepository(kv KVStore) *SnapshotRepository {
	return &SnapshotRepository{kv: kv}
}

// Get reads both keys of version.
//
// A missing saved-list key means the namespace is absent. A missing id key is rebuilt from the saved list.
func (r *SnapshotRepository) Get(ctx context.Context, version models.Version) (*models.Snapshot, error) {
	if !version.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownVersion, version)
	}
	keys := version.Keys()

	values, err := r.kv.GetKeys(ctx, keys.Collected, keys.Saved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorageRead, err)
	}

	rawSaved, ok := values[keys.Saved]
	if !ok {
		return nil, nil
	}

	snap := models.EmptySnapshot()
	if err := json.Unmarshal(rawSaved, &snap.SavedUserList); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", shared.ErrStorageRead, keys.Saved, err)
	}

	if rawIDs, ok := values[keys.Collected]; ok {
		if err := json.Unmarshal(rawIDs, &snap.CollectedUsers); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", shared.ErrStorageRead, keys.Collected, err)
		}
	}

	// Rebuilds the id set from saved records and normalizes null arrays.
	merged, _ := models.Merge(snap, models.Snapshot{})
	return &merged, nil
}

// Set writes both keys of version in one atomic unit.
func (r *SnapshotRepository) Set(ctx context.Context, version models.Version, snap models.Snapshot) error {
	if !version.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownVersion, version)
	}
	keys := version.Keys()
	snap = snap.Clone()

	ids, err := json.Marshal(snap.CollectedUsers)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", shared.ErrStorageWrite, keys.Collected, err)
	}
	saved, err := json.Marshal(snap.SavedUserList)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", shared.ErrStorageWrite, keys.Saved, err)
	}

	if err := r.kv.SetKeys(ctx, map[string][]byte{keys.Collected: ids, keys.Saved: saved}); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageWrite, err)
	}
	return nil
}

// Remove deletes both keys of version in one atomic unit.
func (r *SnapshotRepository) Remove(ctx context.Context, version models.Version) error {
	if !version.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownVersion, version)
	}
	keys := version.Keys()
	if err := r.kv.RemoveKeys(ctx, keys.Collected, keys.Saved); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageWrite, err)
	}
	return nil
}

// Watch forwards the change feed of the backend. It returns a nil channel when the backend cannot watch.
func (r *SnapshotRepository) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	w, ok := r.kv.(Watcher)
	if !ok {
		return nil, nil
	}
	return w.Watch(ctx)
}

// Close releases the backend.
func (r *SnapshotRepository) Close() error {
	return r.kv.Close()
}

// countElements returns the length of a JSON array value, or 0 when it is not an array.
func countElements(raw []byte) int {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}
