package broker

import (
	"fmt"
	"sync"

	"github.com/desertthunder/leadsync/internal/models"
)

// Partition is the broker state of one namespace.
//
// mu guards the cached snapshot and its flags. writeMu serializes durable writes and removals so a clear can never
// interleave with a flush. gen counts clears; a flush started under an older generation is discarded. removing is set
// by a clear until the durable keys are gone or overwritten; while it is set the stored snapshot is stale.
type Partition struct {
	version models.Version

	mu       sync.Mutex
	snap     models.Snapshot
	loaded   bool
	dirty    bool
	removing bool
	gen      uint64

	writeMu sync.Mutex
}

func newPartition(v models.Version) *Partition {
	return &Partition{version: v, snap: models.EmptySnapshot()}
}

// Version returns the namespace of p.
func (p *Partition) Version() models.Version { return p.version }

// Snapshot returns a copy of the cached snapshot.
func (p *Partition) Snapshot() models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Clone()
}

// Loaded reports whether the store has been read into the cache at least once.
func (p *Partition) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Dirty reports whether the cache holds changes not yet flushed.
func (p *Partition) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// RemovePending reports whether a clear is still waiting for its durable removal.
func (p *Partition) RemovePending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removing
}

// Generation returns the number of clears applied to p.
func (p *Partition) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Registry maps each [models.Version] to its [Partition].
type Registry struct {
	parts map[models.Version]*Partition
}

// NewRegistry creates a registry with one empty partition per known version.
func NewRegistry() *Registry {
	r := &Registry{parts: make(map[models.Version]*Partition, len(models.Versions))}
	for _, v := range models.Versions {
		r.parts[v] = newPartition(v)
	}
	return r
}

// Lookup returns the partition for v. An empty version selects basic.
func (r *Registry) Lookup(v models.Version) (*Partition, error) {
	p, ok := r.parts[v.OrDefault()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownVersion, v)
	}
	return p, nil
}

// All returns every partition in [models.Versions] order.
func (r *Registry) All() []*Partition {
	out := make([]*Partition, 0, len(models.Versions))
	for _, v := range models.Versions {
		out = append(out, r.parts[v])
	}
	return out
}
