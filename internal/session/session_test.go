package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
)

type fakeTransport struct {
	sent    []protocol.Envelope
	events  chan protocol.Envelope
	failing error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan protocol.Envelope, 16)}
}

func (f *fakeTransport) Emit(_ context.Context, env protocol.Envelope) error {
	if f.failing != nil {
		return f.failing
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Events() <-chan protocol.Envelope { return f.events }

var fixedNow = time.Date(2024, 5, 1, 8, 15, 0, 0, time.UTC)

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(tr, "alice", append(base, opts...)...), tr
}

func envelope(t *testing.T, event string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func TestJoinSendsRequestAndSwitchesOptimistically(t *testing.T) {
	s, tr := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Join(ctx, "general"))
	room, ok := s.CurrentRoom()
	assert.True(t, ok)
	assert.Equal(t, "general", room)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, protocol.EventJoinRoom, tr.sent[0].Event)
	var req protocol.JoinRoom
	require.NoError(t, tr.sent[0].Bind(&req))
	assert.Equal(t, protocol.JoinRoom{RoomID: "general", Username: "alice"}, req)
}

func TestJoinCurrentRoomIsNoop(t *testing.T) {
	s, tr := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Join(ctx, "general"))
	require.NoError(t, s.Send(ctx, "hi"))

	require.NoError(t, s.Join(ctx, "general"))

	assert.Len(t, tr.sent, 2)
	assert.Len(t, s.Messages(), 1)
}

func TestJoinClearsLog(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Join(ctx, "general"))
	require.NoError(t, s.Send(ctx, "hi"))

	require.NoError(t, s.Join(ctx, "tech_qa"))

	assert.Empty(t, s.Messages())
}

func TestJoinFailureKeepsState(t *testing.T) {
	s, tr := newTestSession(t)
	tr.failing = errors.New("boom")

	err := s.Join(context.Background(), "general")

	assert.ErrorIs(t, err, tr.failing)
	_, ok := s.CurrentRoom()
	assert.False(t, ok)
}

func TestJoinBlankRoomIsNoop(t *testing.T) {
	s, tr := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Join(ctx, "general"))
	require.NoError(t, s.Send(ctx, "hi"))

	require.NoError(t, s.Join(ctx, ""))
	require.NoError(t, s.Join(ctx, "  \t"))

	assert.Len(t, tr.sent, 2)
	room, ok := s.CurrentRoom()
	assert.True(t, ok)
	assert.Equal(t, "general", room)
	assert.Len(t, s.Messages(), 1)

	s.Handle(envelope(t, protocol.EventReceiveMessage, protocol.ChatMessage{Author: "bob", Message: "still here", RoomID: "general"}))
	assert.Len(t, s.Messages(), 2)
}

// gatedTransport blocks every Emit until release is closed.
type gatedTransport struct {
	entered chan struct{}
	release chan struct{}
	events  chan protocol.Envelope
}

func (g *gatedTransport) Emit(ctx context.Context, _ protocol.Envelope) error {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedTransport) Events() <-chan protocol.Envelope { return g.events }

func TestStateReadableWhileEmitting(t *testing.T) {
	tr := &gatedTransport{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
		events:  make(chan protocol.Envelope),
	}
	s := New(tr, "alice",
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctx := context.Background()

	joined := make(chan error, 1)
	go func() { joined <- s.Join(ctx, "general") }()
	<-tr.entered

	room, ok := s.CurrentRoom()
	assert.True(t, ok)
	assert.Equal(t, "general", room)
	s.Handle(envelope(t, protocol.EventRoomJoined, protocol.RoomJoined{RoomID: "general", Message: "welcome"}))
	assert.Len(t, s.Messages(), 1)

	close(tr.release)
	require.NoError(t, <-joined)

	require.NoError(t, s.Send(ctx, "hi"))
	<-tr.entered
	assert.Len(t, s.Messages(), 2)
}

func TestJoinFailureRestoresPreviousRoom(t *testing.T) {
	s, tr := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Join(ctx, "general"))
	require.NoError(t, s.Send(ctx, "hi"))
	tr.failing = errors.New("boom")

	assert.ErrorIs(t, s.Join(ctx, "tech_qa"), tr.failing)

	room, _ := s.CurrentRoom()
	assert.Equal(t, "general", room)
	assert.Len(t, s.Messages(), 1)
}

func TestSendEchoesLocally(t *testing.T) {
	var echoed []protocol.ChatMessage
	s, tr := newTestSession(t, WithEntryHandler(func(m protocol.ChatMessage) { echoed = append(echoed, m) }))
	ctx := context.Background()
	require.NoError(t, s.Join(ctx, "general"))

	require.NoError(t, s.Send(ctx, "hello"))

	want := protocol.ChatMessage{Author: "alice", Message: "hello", Time: "08:15", RoomID: "general"}
	assert.Equal(t, []protocol.ChatMessage{want}, s.Messages())
	assert.Equal(t, []protocol.ChatMessage{want}, echoed)

	var sent protocol.ChatMessage
	require.NoError(t, tr.sent[1].Bind(&sent))
	assert.Equal(t, protocol.EventSendMessage, tr.sent[1].Event)
	assert.Equal(t, want, sent)
}

func TestSendIgnoresBlankOrRoomless(t *testing.T) {
	s, tr := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, "before joining"))
	assert.Empty(t, tr.sent)

	require.NoError(t, s.Join(ctx, "general"))
	require.NoError(t, s.Send(ctx, "   \t"))
	require.NoError(t, s.Send(ctx, ""))

	assert.Len(t, tr.sent, 1)
	assert.Empty(t, s.Messages())
}

func TestDraftSubmit(t *testing.T) {
	s, tr := newTestSession(t)
	ctx := context.Background()

	s.SetDraft("pending")
	require.NoError(t, s.SubmitDraft(ctx))
	assert.Equal(t, "pending", s.Draft())
	assert.Empty(t, tr.sent)

	require.NoError(t, s.Join(ctx, "general"))
	require.NoError(t, s.SubmitDraft(ctx))
	assert.Equal(t, "", s.Draft())
	require.Len(t, s.Messages(), 1)
	assert.Equal(t, "pending", s.Messages()[0].Message)
}

func TestReceiveUserMessage(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Join(context.Background(), "general"))

	msg := protocol.ChatMessage{Author: "bob", Message: "hey", Time: "08:00", RoomID: "general"}
	s.Handle(envelope(t, protocol.EventReceiveMessage, msg))

	assert.Equal(t, []protocol.ChatMessage{msg}, s.Messages())
}

func TestReceiveClassifiesSystemMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.ChatMessage
	}{
		{name: "flag", msg: protocol.ChatMessage{Author: "bob", Message: "announcement", Time: "07:00", RoomID: "general", IsSystemMessage: true}},
		{name: "author", msg: protocol.ChatMessage{Author: "System", Message: "maintenance", Time: "07:00", RoomID: "general"}},
		{name: "text", msg: protocol.ChatMessage{Author: "bob", Message: "carol 님이 입장했습니다.", Time: "07:00", RoomID: "general"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t)
			require.NoError(t, s.Join(context.Background(), "general"))

			s.Handle(envelope(t, protocol.EventReceiveMessage, tt.msg))

			require.Len(t, s.Messages(), 1)
			got := s.Messages()[0]
			assert.Equal(t, "system", got.Author)
			assert.True(t, got.IsSystemMessage)
			assert.Equal(t, tt.msg.Message, got.Message)
			assert.Equal(t, "07:00", got.Time)
		})
	}
}

func TestSystemMessageWithoutTimeIsStamped(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Join(context.Background(), "general"))

	s.Handle(envelope(t, protocol.EventReceiveMessage, protocol.ChatMessage{Author: "system", Message: "x", RoomID: "general"}))

	assert.Equal(t, "08:15", s.Messages()[0].Time)
}

func TestEventsForOtherRoomsAreDiscarded(t *testing.T) {
	var presence []protocol.Presence
	s, _ := newTestSession(t, WithPresenceHandler(func(_ string, p protocol.Presence) { presence = append(presence, p) }))
	require.NoError(t, s.Join(context.Background(), "tech_qa"))

	s.Handle(envelope(t, protocol.EventReceiveMessage, protocol.ChatMessage{Author: "bob", Message: "stale", RoomID: "general"}))
	s.Handle(envelope(t, protocol.EventRoomJoined, protocol.RoomJoined{RoomID: "general", Message: "old ack"}))
	s.Handle(envelope(t, protocol.EventUserJoined, protocol.Presence{RoomID: "general", Username: "bob"}))
	s.Handle(envelope(t, protocol.EventUserLeft, protocol.Presence{RoomID: "general", Username: "bob"}))

	assert.Empty(t, s.Messages())
	assert.Empty(t, presence)
}

func TestEventsBeforeJoinAreDiscarded(t *testing.T) {
	s, _ := newTestSession(t)
	s.Handle(envelope(t, protocol.EventReceiveMessage, protocol.ChatMessage{Author: "bob", Message: "hi", RoomID: ""}))
	assert.Empty(t, s.Messages())
}

func TestRoomJoinedAppendsAck(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Join(context.Background(), "general"))

	s.Handle(envelope(t, protocol.EventRoomJoined, protocol.RoomJoined{RoomID: "general", Message: "welcome"}))

	require.Len(t, s.Messages(), 1)
	assert.Equal(t, protocol.ChatMessage{
		Author:          "system",
		Message:         "welcome",
		Time:            "08:15",
		RoomID:          "general",
		IsSystemMessage: true,
	}, s.Messages()[0])
}

func TestPresenceEvents(t *testing.T) {
	type seen struct {
		event string
		p     protocol.Presence
	}
	var got []seen
	s, _ := newTestSession(t, WithPresenceHandler(func(event string, p protocol.Presence) {
		got = append(got, seen{event: event, p: p})
	}))
	require.NoError(t, s.Join(context.Background(), "general"))

	s.Handle(envelope(t, protocol.EventUserJoined, protocol.Presence{RoomID: "general", Username: "bob"}))
	s.Handle(envelope(t, "user-left", map[string]string{"user": "carol"}))
	s.Handle(envelope(t, "leave", map[string]string{"roomId": "general", "id": "abc"}))

	assert.Equal(t, []seen{
		{event: protocol.EventUserJoined, p: protocol.Presence{RoomID: "general", Username: "bob"}},
		{event: protocol.EventUserLeft, p: protocol.Presence{RoomID: "general", Username: "carol"}},
		{event: protocol.EventUserLeft, p: protocol.Presence{RoomID: "general", Username: "abc"}},
	}, got)
	assert.Empty(t, s.Messages())
}

func TestRunDispatchesUntilClosed(t *testing.T) {
	s, tr := newTestSession(t)
	require.NoError(t, s.Join(context.Background(), "general"))

	tr.events <- envelope(t, protocol.EventReceiveMessage, protocol.ChatMessage{Author: "bob", Message: "one", RoomID: "general"})
	tr.events <- envelope(t, protocol.EventReceiveMessage, protocol.ChatMessage{Author: "bob", Message: "two", RoomID: "general"})
	close(tr.events)

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, s.Messages(), 2)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, _ := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}
