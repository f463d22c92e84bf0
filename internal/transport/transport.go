package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/shared"
)

// Handler serves requests addressed to one context. Handlers report every outcome as a [protocol.Response].
type Handler interface {
	Handle(ctx context.Context, req protocol.Request) protocol.Response
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, req protocol.Request) protocol.Response

func (f HandlerFunc) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	return f(ctx, req)
}

// Caller sends requests to another context.
//
// Call waits for the reply; Notify does not. Ping fails with [shared.ErrContextInvalidated] once the other side is
// gone.
type Caller interface {
	Call(ctx context.Context, req protocol.Request) (protocol.Response, error)
	Notify(ctx context.Context, req protocol.Request) error
	Ping(ctx context.Context) error
}

// Local is an in-process [Caller] around a [Handler].
type Local struct {
	handler Handler

	mu      sync.RWMutex
	invalid bool
}

// NewLocal creates a [Local] caller for h.
func NewLocal(h Handler) *Local {
	return &Local{handler: h}
}

// Invalidate makes every later call fail as if the other context had been torn down.
func (l *Local) Invalidate() {
	l.mu.Lock()
	l.invalid = true
	l.mu.Unlock()
}

// Restore undoes [Local.Invalidate].
func (l *Local) Restore() {
	l.mu.Lock()
	l.invalid = false
	l.mu.Unlock()
}

func (l *Local) valid() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.invalid
}

func (l *Local) Call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}
	if !l.valid() {
		return protocol.Response{}, shared.ErrContextInvalidated
	}

	sent, err := copyVia[protocol.Request](req)
	if err != nil {
		return protocol.Response{}, err
	}
	resp := l.handler.Handle(ctx, sent)
	return copyVia[protocol.Response](resp)
}

func (l *Local) Notify(ctx context.Context, req protocol.Request) error {
	_, err := l.Call(ctx, req)
	return err
}

func (l *Local) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.valid() {
		return shared.ErrContextInvalidated
	}
	return nil
}

// copyVia round-trips v through JSON so sender and receiver never alias.
func copyVia[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("%w: encode: %v", shared.ErrMessageChannel, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: decode: %v", shared.ErrMessageChannel, err)
	}
	return out, nil
}
