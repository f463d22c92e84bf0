package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/shared"
)

// Mux is a [Handler] that forwards each request to the context owning its action.
//
// Broker actions and progress notifications go to the broker handler, which relays progress to its subscribers.
// Collection control goes to the active agent; registering a new agent replaces the previous one. A successful
// clearData is also passed on to the active agent so its working set does not resurrect cleared records.
type Mux struct {
	broker Handler

	mu    sync.RWMutex
	agent Caller
}

// NewMux creates a [Mux] in front of broker.
func NewMux(broker Handler) *Mux {
	return &Mux{broker: broker}
}

// SetAgent makes c the active agent.
func (m *Mux) SetAgent(c Caller) {
	m.mu.Lock()
	m.agent = c
	m.mu.Unlock()
}

// ClearAgent detaches c if it is still the active agent.
func (m *Mux) ClearAgent(c Caller) {
	m.mu.Lock()
	if m.agent == c {
		m.agent = nil
	}
	m.mu.Unlock()
}

// Agent returns the active agent or nil.
func (m *Mux) Agent() Caller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

func (m *Mux) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	switch protocol.TargetOf(req.Action) {
	case protocol.TargetBroker, protocol.TargetDisplay:
		resp := m.broker.Handle(ctx, req)
		if req.Action == protocol.ActionClearData && resp.Success {
			if agent := m.Agent(); agent != nil {
				_ = agent.Notify(ctx, req)
			}
		}
		return resp
	case protocol.TargetAgent:
		agent := m.Agent()
		if agent == nil {
			return protocol.Fail(fmt.Errorf("%w: no active agent", shared.ErrServiceUnavailable))
		}
		resp, err := agent.Call(ctx, req)
		if err != nil {
			return protocol.Fail(err)
		}
		return resp
	default:
		return protocol.Fail(fmt.Errorf("%w: %q", shared.ErrUnknownAction, req.Action))
	}
}
