// Package session implements the client side of the chat relay: one room at
// a time, an optimistic local message log, and classification of the events
// the server pushes.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
)

// systemAuthor is how system entries are labelled in the local log.
const systemAuthor = "system"

// Leave event names emitted by older servers, accepted alongside user_left.
var leaveAliases = map[string]struct{}{
	protocol.EventUserLeft: {},
	"user-left":            {},
	"left":                 {},
	"leave":                {},
}

// Transport is the persistent channel to the server. Events must keep
// delivering until the connection ends, then be closed.
type Transport interface {
	Emit(ctx context.Context, env protocol.Envelope) error
	Events() <-chan protocol.Envelope
}

// Session is one user's view of the chat: the room they are in, the text
// they are typing, and the messages received since they entered the room.
type Session struct {
	transport  Transport
	username   string
	now        func() time.Time
	logger     *slog.Logger
	onEntry    func(protocol.ChatMessage)
	onPresence func(event string, p protocol.Presence)

	// emitMu serializes Join and Send so that requests leave in call order.
	// mu is never held while writing to the transport.
	emitMu sync.Mutex

	mu    sync.Mutex
	room  string
	draft string
	log   []protocol.ChatMessage
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used to stamp outgoing messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEntryHandler registers fn to be called for every entry appended to the
// log, including optimistic echoes. fn runs without the session lock held.
func WithEntryHandler(fn func(protocol.ChatMessage)) Option {
	return func(s *Session) { s.onEntry = fn }
}

// WithPresenceHandler registers fn to receive user_joined and user_left
// events for the current room.
func WithPresenceHandler(fn func(event string, p protocol.Presence)) Option {
	return func(s *Session) { s.onPresence = fn }
}

// New creates a Session that talks to the server over transport.
func New(transport Transport, username string, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		username:  username,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Username returns the display name sent with joins and messages.
func (s *Session) Username() string {
	return s.username
}

// CurrentRoom returns the room the session is in, if any.
func (s *Session) CurrentRoom() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.room != ""
}

// Messages returns a copy of the local log.
func (s *Session) Messages() []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ChatMessage(nil), s.log...)
}

// Join switches to roomID. Joining the current room or a blank room does
// nothing. The log is cleared and the current room updated as soon as the
// request is sent, without waiting for the server to acknowledge it. If the
// request cannot be sent, the previous room and log are restored.
func (s *Session) Join(ctx context.Context, roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return nil
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.room == roomID {
		s.mu.Unlock()
		return nil
	}
	env, err := protocol.NewEnvelope(protocol.EventJoinRoom, protocol.JoinRoom{
		RoomID:   roomID,
		Username: s.username,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	prevRoom, prevLog := s.room, s.log
	s.room = roomID
	s.log = nil
	s.mu.Unlock()

	if err := s.transport.Emit(ctx, env); err != nil {
		s.mu.Lock()
		s.room, s.log = prevRoom, prevLog
		s.mu.Unlock()
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	return nil
}

// Send posts body to the current room and appends it to the local log right
// away. The server never echoes a message back to its author. Blank bodies
// and sends outside a room are ignored.
func (s *Session) Send(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.room == "" {
		s.mu.Unlock()
		return nil
	}
	msg := protocol.ChatMessage{
		Author:  s.username,
		Message: body,
		Time:    protocol.Stamp(s.now()),
		RoomID:  s.room,
	}
	s.mu.Unlock()

	env, err := protocol.NewEnvelope(protocol.EventSendMessage, msg)
	if err != nil {
		return err
	}
	if err := s.transport.Emit(ctx, env); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	s.log = append(s.log, msg)
	s.mu.Unlock()

	s.notifyEntry(msg)
	return nil
}

// Draft returns the pending input text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the pending input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// SubmitDraft sends the pending input text and clears it. The draft is kept
// when sending fails or when there is no room to send to.
func (s *Session) SubmitDraft(ctx context.Context) error {
	draft := s.Draft()
	if _, ok := s.CurrentRoom(); !ok {
		return nil
	}
	if err := s.Send(ctx, draft); err != nil {
		return err
	}

	s.mu.Lock()
	if s.draft == draft {
		s.draft = ""
	}
	s.mu.Unlock()
	return nil
}

// Run feeds every event from the transport into Handle until the transport
// closes its event channel or ctx ends. The subscription is set up once; the
// current room is checked per event.
func (s *Session) Run(ctx context.Context) error {
	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-events:
			if !ok {
				return nil
			}
			s.Handle(env)
		}
	}
}

// Handle applies one server event to the session. Events for rooms other
// than the current one are discarded.
func (s *Session) Handle(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventReceiveMessage:
		s.handleReceive(env)
	case protocol.EventRoomJoined:
		s.handleRoomJoined(env)
	case protocol.EventUserJoined:
		s.handleUserJoined(env)
	default:
		if _, ok := leaveAliases[env.Event]; ok {
			s.handleUserLeft(env)
			return
		}
		s.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (s *Session) handleReceive(env protocol.Envelope) {
	var msg protocol.ChatMessage
	if err := env.Bind(&msg); err != nil {
		s.logger.Warn("dropping malformed message", "error", err)
		return
	}

	if msg.IsSystem() {
		if msg.Time == "" {
			msg.Time = protocol.Stamp(s.now())
		}
		msg = protocol.ChatMessage{
			Author:          systemAuthor,
			Message:         msg.Message,
			Time:            msg.Time,
			RoomID:          msg.RoomID,
			IsSystemMessage: true,
		}
	}
	s.appendForRoom(msg)
}

func (s *Session) handleRoomJoined(env protocol.Envelope) {
	var ack protocol.RoomJoined
	if err := env.Bind(&ack); err != nil {
		s.logger.Warn("dropping malformed join acknowledgment", "error", err)
		return
	}

	s.appendForRoom(protocol.ChatMessage{
		Author:          systemAuthor,
		Message:         ack.Message,
		Time:            protocol.Stamp(s.now()),
		RoomID:          ack.RoomID,
		IsSystemMessage: true,
	})
}

func (s *Session) handleUserJoined(env protocol.Envelope) {
	var p protocol.Presence
	if err := env.Bind(&p); err != nil {
		s.logger.Warn("dropping malformed presence event", "event", env.Event, "error", err)
		return
	}
	if !s.inRoom(p.RoomID) {
		return
	}
	s.notifyPresence(protocol.EventUserJoined, p)
}

// leavePayload accepts the field names older servers used for user_left.
type leavePayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	User     string `json:"user"`
	Name     string `json:"name"`
	ID       string `json:"id"`
}

func (s *Session) handleUserLeft(env protocol.Envelope) {
	var data leavePayload
	if err := env.Bind(&data); err != nil {
		s.logger.Warn("dropping malformed presence event", "event", env.Event, "error", err)
		return
	}

	roomID := data.RoomID
	if roomID == "" {
		roomID, _ = s.CurrentRoom()
	}
	if roomID == "" || !s.inRoom(roomID) {
		return
	}

	who := firstNonEmpty(data.Username, data.User, data.Name, data.ID)
	s.notifyPresence(protocol.EventUserLeft, protocol.Presence{RoomID: roomID, Username: who})
}

func (s *Session) inRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != "" && s.room == roomID
}

func (s *Session) appendForRoom(msg protocol.ChatMessage) {
	s.mu.Lock()
	if s.room == "" || msg.RoomID != s.room {
		s.mu.Unlock()
		s.logger.Debug("discarding event for another room", "room", msg.RoomID)
		return
	}
	s.log = append(s.log, msg)
	s.mu.Unlock()

	s.notifyEntry(msg)
}

func (s *Session) notifyEntry(msg protocol.ChatMessage) {
	if s.onEntry != nil {
		s.onEntry(msg)
	}
}

func (s *Session) notifyPresence(event string, p protocol.Presence) {
	if s.onPresence != nil {
		s.onPresence(event, p)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
