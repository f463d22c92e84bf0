package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Role identifies what a websocket client is.
type Role string

const (
	RoleAgent   Role = "agent"
	RoleDisplay Role = "display"
)

// ParseRole validates a role query parameter.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAgent, RoleDisplay:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: role %q", shared.ErrInvalidArgument, s)
	}
}

// ReadLimit bounds a single inbound frame. Snapshots travel whole, so the library default is far too small.
const ReadLimit = 64 << 20

// Peer is one end of a websocket connection.
//
// It is a [Caller] for the remote side and serves inbound requests with its local [Handler]. Run must be active
// for calls, pings and inbound requests to make progress.
type Peer struct {
	conn    *websocket.Conn
	handler Handler
	logger  *log.Logger

	mu      sync.Mutex
	pending map[string]chan protocol.Response
	closed  bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewPeer wraps an established connection. handler may be nil when the peer never serves requests.
func NewPeer(conn *websocket.Conn, handler Handler, logger *log.Logger) *Peer {
	conn.SetReadLimit(ReadLimit)
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Peer{
		conn:    conn,
		handler: handler,
		logger:  logger,
		pending: make(map[string]chan protocol.Response),
		done:    make(chan struct{}),
	}
}

// Dial connects to a broker websocket endpoint as role and starts the read loop.
func Dial(ctx context.Context, endpoint string, role Role, handler Handler, logger *log.Logger) (*Peer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	q := u.Query()
	q.Set("role", string(role))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", shared.ErrServiceUnavailable, u.Redacted(), err)
	}

	p := NewPeer(conn, handler, logger)
	go func() {
		if err := p.Run(context.Background()); err != nil {
			p.logger.Debug("peer read loop ended", "error", err)
		}
	}()
	return p, nil
}

// Done is closed once the connection is gone.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Run reads frames until the connection closes or ctx ends.
func (p *Peer) Run(ctx context.Context) error {
	defer p.shutdown()

	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			p.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch frame.Kind {
		case protocol.FrameResponse:
			p.deliver(frame)
		case protocol.FrameCall, protocol.FrameNotify:
			go p.serve(ctx, frame)
		default:
			p.logger.Warn("dropping frame of unknown kind", "kind", frame.Kind)
		}
	}
}

func (p *Peer) deliver(frame protocol.Frame) {
	p.mu.Lock()
	ch, ok := p.pending[frame.ID]
	delete(p.pending, frame.ID)
	p.mu.Unlock()

	if !ok || frame.Response == nil {
		return
	}
	ch <- *frame.Response
}

func (p *Peer) serve(ctx context.Context, frame protocol.Frame) {
	var resp protocol.Response
	req, err := protocol.DecodeRequest(frame.Request)
	switch {
	case err != nil:
		resp = protocol.Fail(err)
	case p.handler == nil:
		resp = protocol.Fail(fmt.Errorf("%w: peer serves no requests", shared.ErrNotImplemented))
	default:
		resp = p.handler.Handle(ctx, req)
	}

	if frame.Kind != protocol.FrameCall {
		return
	}
	if err := p.write(ctx, protocol.Frame{ID: frame.ID, Kind: protocol.FrameResponse, Response: &resp}); err != nil {
		p.logger.Debug("failed to send response", "id", frame.ID, "error", err)
	}
}

func (p *Peer) write(ctx context.Context, frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %v", shared.ErrMessageChannel, err)
	}
	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMessageChannel, err)
	}
	return nil
}

func encodeRequest(req protocol.Request) (json.RawMessage, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", shared.ErrMessageChannel, err)
	}
	return raw, nil
}

func (p *Peer) Call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	raw, err := encodeRequest(req)
	if err != nil {
		return protocol.Response{}, err
	}

	id := uuid.NewString()
	ch := make(chan protocol.Response, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return protocol.Response{}, shared.ErrContextInvalidated
	}
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.write(ctx, protocol.Frame{ID: id, Kind: protocol.FrameCall, Request: raw}); err != nil {
		return protocol.Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-p.done:
		return protocol.Response{}, fmt.Errorf("%w: connection closed awaiting %s", shared.ErrMessageChannel, req.Action)
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

func (p *Peer) Notify(ctx context.Context, req protocol.Request) error {
	raw, err := encodeRequest(req)
	if err != nil {
		return err
	}
	if p.isClosed() {
		return shared.ErrContextInvalidated
	}
	return p.write(ctx, protocol.Frame{Kind: protocol.FrameNotify, Request: raw})
}

func (p *Peer) Ping(ctx context.Context) error {
	if p.isClosed() {
		return shared.ErrContextInvalidated
	}
	if err := p.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrContextInvalidated, err)
	}
	return nil
}

// Close ends the connection normally.
func (p *Peer) Close() error {
	err := p.conn.Close(websocket.StatusNormalClosure, "")
	p.shutdown()
	return err
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) shutdown() {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
}
