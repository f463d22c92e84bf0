package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/transport"
	"nhooyr.io/websocket"
)

// Hub accepts agent and display websocket connections.
type Hub struct {
	mux      *transport.Mux
	progress ProgressSource
	logger   *log.Logger

	mu     sync.Mutex
	peers  map[*transport.Peer]transport.Role
	closed bool
}

// NewHub creates a hub routing every inbound request through mux. progress may be nil.
func NewHub(mux *transport.Mux, progress ProgressSource, logger *log.Logger) *Hub {
	return &Hub{
		mux:      mux,
		progress: progress,
		logger:   logger,
		peers:    map[*transport.Peer]transport.Role{},
	}
}

func (h *Hub) Routes() []string { return []string{"GET /ws"} }

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role, err := transport.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	peer := transport.NewPeer(conn, h.mux, h.logger.With("role", role))
	if !h.add(peer, role) {
		_ = peer.Close()
		return
	}
	defer h.remove(peer)

	ctx := r.Context()
	switch role {
	case transport.RoleAgent:
		h.mux.SetAgent(peer)
		defer h.mux.ClearAgent(peer)
		h.logger.Info("agent attached", "remote", r.RemoteAddr)
	case transport.RoleDisplay:
		h.logger.Info("display attached", "remote", r.RemoteAddr)
		if h.progress != nil {
			go h.forwardProgress(ctx, peer)
		}
	}

	if err := peer.Run(ctx); err != nil {
		h.logger.Debug("peer closed", "role", role, "error", err)
	}
	h.logger.Info("peer detached", "role", role, "remote", r.RemoteAddr)
}

// forwardProgress pushes broker progress to a display until it disconnects.
func (h *Hub) forwardProgress(ctx context.Context, peer *transport.Peer) {
	updates, cancel := h.progress.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-peer.Done():
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			if err := peer.Notify(ctx, protocol.NewUpdateProgress(p.Version, p.Percent)); err != nil {
				h.logger.Debug("progress notification dropped", "error", err)
			}
		}
	}
}

func (h *Hub) add(p *transport.Peer, role transport.Role) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = role
	return true
}

func (h *Hub) remove(p *transport.Peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

// Count returns the number of connected peers with role.
func (h *Hub) Count(role transport.Role) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.peers {
		if r == role {
			n++
		}
	}
	return n
}

// Close disconnects every peer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*transport.Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		_ = p.Close()
	}
}
