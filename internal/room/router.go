package room

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
)

// Emitter delivers an envelope to a single connection. Delivery is
// fire-and-forget; an Emitter never reports failure back to the router.
type Emitter interface {
	Emit(to ConnID, env protocol.Envelope)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(to ConnID, env protocol.Envelope)

// Emit calls f(to, env).
func (f EmitterFunc) Emit(to ConnID, env protocol.Envelope) { f(to, env) }

// Router applies join, send, and disconnect events to the registry and emits
// the resulting notifications. Calls for one connection must not run
// concurrently with each other.
type Router struct {
	registry *Registry
	emitter  Emitter
	phrases  protocol.Phrasebook
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLocale selects the language of synthesized notices.
func WithLocale(l protocol.Locale) Option {
	return func(r *Router) { r.phrases = protocol.PhrasebookFor(l) }
}

// WithClock overrides the time source used to stamp notices.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a Router over registry that delivers through emitter.
func NewRouter(registry *Registry, emitter Emitter, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		emitter:  emitter,
		phrases:  protocol.PhrasebookFor(protocol.LocaleKorean),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the router mutates.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Dispatch routes an inbound client envelope to Join or Send. Unknown events
// and undecodable payloads are logged and dropped.
func (r *Router) Dispatch(conn ConnID, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinRoom:
		var req protocol.JoinRoom
		if err := env.Bind(&req); err != nil {
			r.logger.Warn("dropping malformed join", "conn", conn, "error", err)
			return
		}
		r.Join(conn, req.RoomID, req.Username)
	case protocol.EventSendMessage:
		r.Send(conn, env.Data)
	default:
		r.logger.Warn("dropping unknown event", "conn", conn, "event", env.Event)
	}
}

// Join moves conn into roomID. Joining the room conn already occupies does
// nothing. Otherwise the previous room's other members hear that conn left,
// the new room's other members hear that it joined, and conn alone receives
// a room_joined acknowledgment.
func (r *Router) Join(conn ConnID, roomID, name string) {
	if roomID == "" {
		r.logger.Warn("dropping join without room id", "conn", conn, "username", name)
		return
	}

	prev, inRoom := r.registry.CurrentRoom(conn)
	if inRoom && prev == roomID {
		return
	}

	if inRoom {
		prevName := r.registry.Name(conn)
		if prevName == "" {
			prevName = name
		}
		r.notifyLeft(conn, prev, prevName)
		r.registry.LeaveCurrentRoom(conn)
	}

	r.registry.SetName(conn, name)
	r.registry.Enter(conn, roomID)
	r.logger.Info("connection joined room", "conn", conn, "username", name, "room", roomID)

	r.notify(conn, roomID, r.phrases.JoinedText(name), protocol.EventUserJoined, name)
	r.emit(conn, protocol.EventRoomJoined, protocol.RoomJoined{
		RoomID:  roomID,
		Message: r.phrases.RoomJoinedText(roomID),
	})
}

// Send relays a send_message payload verbatim to every other member of the
// room it names. A payload without a room id is logged and dropped.
func (r *Router) Send(conn ConnID, payload json.RawMessage) {
	var msg protocol.ChatMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.logger.Warn("dropping malformed message", "conn", conn, "error", err)
			return
		}
	}
	if msg.RoomID == "" {
		r.logger.Warn("dropping message without room id", "conn", conn, "author", msg.Author)
		return
	}

	r.logger.Debug("relaying message", "conn", conn, "author", msg.Author, "room", msg.RoomID)
	env := protocol.Envelope{Event: protocol.EventReceiveMessage, Data: payload}
	for _, member := range r.registry.Members(msg.RoomID) {
		if member != conn {
			r.emitter.Emit(member, env)
		}
	}
}

// Disconnect tells the remaining members of conn's room that it left and
// discards all state for conn.
func (r *Router) Disconnect(conn ConnID) {
	name := r.registry.Name(conn)
	if roomID, ok := r.registry.CurrentRoom(conn); ok {
		r.notifyLeft(conn, roomID, name)
		r.logger.Info("connection left room", "conn", conn, "username", name, "room", roomID)
	}
	r.registry.Forget(conn)
}

func (r *Router) notifyLeft(conn ConnID, roomID, name string) {
	r.notify(conn, roomID, r.phrases.LeftText(name), protocol.EventUserLeft, name)
}

// notify sends a system message followed by the matching presence event to
// every member of roomID except conn.
func (r *Router) notify(conn ConnID, roomID, text, presenceEvent, name string) {
	notice, err := protocol.NewEnvelope(protocol.EventReceiveMessage, protocol.ChatMessage{
		Author:          protocol.SystemAuthor,
		Message:         text,
		Time:            protocol.Stamp(r.now()),
		RoomID:          roomID,
		IsSystemMessage: true,
	})
	if err != nil {
		r.logger.Error("building notice", "error", err)
		return
	}
	presence, err := protocol.NewEnvelope(presenceEvent, protocol.Presence{
		RoomID:   roomID,
		Username: r.phrases.DisplayName(name),
	})
	if err != nil {
		r.logger.Error("building presence event", "error", err)
		return
	}

	for _, member := range r.registry.Members(roomID) {
		if member == conn {
			continue
		}
		r.emitter.Emit(member, notice)
		r.emitter.Emit(member, presence)
	}
}

func (r *Router) emit(to ConnID, event string, payload any) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		r.logger.Error("building event", "event", event, "error", err)
		return
	}
	r.emitter.Emit(to, env)
}
