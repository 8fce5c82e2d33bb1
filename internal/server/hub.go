// Package server coordinates client registration, room routing, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
	"github.com/Tyrowin/gochat-rooms/internal/room"
)

// Hub owns every live client and feeds their events, one at a time, through
// the room router. Because the run loop handles each event to completion
// before taking the next, router calls never interleave.
type Hub struct {
	cfg        Config
	logger     *slog.Logger
	router     *room.Router
	clients    map[room.ConnID]*Client
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	// failed collects clients whose send buffer overflowed while the
	// current event was being routed. Only touched by the run loop.
	failed []*Client
}

// NewHub creates a Hub with its own connection registry. The returned Hub is
// ready to manage WebSocket connections once Run is started.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitized()

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[room.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.router = room.NewRouter(room.NewRegistry(), h,
		room.WithLocale(cfg.Locale),
		room.WithLogger(logger),
	)
	return h
}

// Registry exposes the hub's connection registry for read-only reporting.
func (h *Hub) Registry() *room.Registry {
	return h.router.Registry()
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a new client to the hub, which starts its pumps. It returns
// false if the hub has shut down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister tells the hub that a client's connection has ended.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) submit(ev inboundEvent) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Emit encodes env and queues it for the client with the given id. A client
// that is gone is skipped; a client whose buffer is full is dropped after the
// current event. Emit must only be called from the run loop.
func (h *Hub) Emit(to room.ConnID, env protocol.Envelope) {
	h.mutex.RLock()
	client, ok := h.clients[to]
	h.mutex.RUnlock()
	if !ok {
		return
	}

	payload, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error("encoding envelope", "event", env.Event, "error", err)
		return
	}

	select {
	case client.send <- payload:
	default:
		h.failed = append(h.failed, client)
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and inbound events. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case ev := <-h.inbound:
			h.handleInbound(ev)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.logger.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	client.logger.Info("client registered", "total", clientCount)

	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
		close(client.send)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.router.Disconnect(client.id)
	h.dropFailedClients()
	client.logger.Info("client unregistered", "total", clientCount)
}

func (h *Hub) handleInbound(ev inboundEvent) {
	h.mutex.RLock()
	_, live := h.clients[ev.client.id]
	h.mutex.RUnlock()
	if !live {
		return
	}

	h.router.Dispatch(ev.client.id, ev.env)
	h.dropFailedClients()
}

// dropFailedClients removes clients that could not keep up and closes their
// queues. Their read pumps then unregister them, which runs the normal
// disconnect path and tells their room they left.
func (h *Hub) dropFailedClients() {
	if len(h.failed) == 0 {
		return
	}

	h.mutex.Lock()
	for _, client := range h.failed {
		if current, ok := h.clients[client.id]; ok && current == client {
			delete(h.clients, client.id)
			close(client.send)
			client.logger.Warn("client removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	h.failed = h.failed[:0]
}

// shutdownClients closes every client queue and connection.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
		close(client.send)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.logger.Warn("closing client connection", "error", err)
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the run loop, closes every connection, and waits for all
// client goroutines to finish or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.logger.Warn("hub shutdown timed out; some goroutines may still be running")
		return ctx.Err()
	}
}
