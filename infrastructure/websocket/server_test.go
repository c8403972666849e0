package websocket

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type harness struct {
	url      string
	signer   auth.Signer
	users    repositories.IUserRepository
	channels repositories.IChannelRepository
	messages repositories.IMessageRepository
	registry *runtime.Registry
	server   *Server
}

func newHarness(t *testing.T) harness {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	h := harness{
		signer:   auth.NewSigner("ws-secret", time.Hour),
		users:    repositories.NewUserRepository(db),
		channels: repositories.NewChannelRepository(db),
		messages: repositories.NewMessageRepository(db, log, nil),
		registry: runtime.NewRegistry(),
	}
	dispatcher := runtime.NewDispatcher(log, h.registry, time.Second)
	membership := services.NewMembershipResolver(h.channels)
	gateway := services.NewMessageGateway(log, h.messages, h.users, h.channels, nil, nil)
	chatService := services.NewChatService(log, h.registry, membership, gateway, dispatcher, h.messages, h.users)

	server := NewServer(log, chatService, DefaultConfig())
	h.server = server
	onError := func(w http.ResponseWriter, err error) {
		http.Error(w, err.Error(), errors.HTTPStatus(err))
	}
	ts := httptest.NewServer(auth.Middleware(h.signer, onError)(server))
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	h.url = "ws" + strings.TrimPrefix(ts.URL, "http")
	return h
}

func (h harness) user(t *testing.T, name string) chat.UserID {
	id, err := h.users.CreateUser(name+"@example.com", "hash", repositories.Profile{FirstName: name})
	require.NoError(t, err)
	return chat.UserID(id)
}

func (h harness) channel(t *testing.T, id string, members ...chat.UserID) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, string(member))
	}
	require.NoError(t, h.channels.CreateChannel(repositories.DiskChannel{
		ID: id, Name: id, Admin: ids[0], Members: ids, CreatedAt: now, LastActivity: now,
	}))
}

// dial connects the user and waits until the server registered the connection.
func (h harness) dial(t *testing.T, userID chat.UserID) *websocket.Conn {
	token, err := h.signer.GenerateToken(string(userID), nil)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(h.url+"/?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool {
		_, ok := h.registry.Lookup(userID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func liveConnections(s *Server) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func send(t *testing.T, conn *websocket.Conn, frameType string, payload any) {
	frame, err := protocol.Frame(frameType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	envelope, err := protocol.Decode(data)
	require.NoError(t, err)
	return envelope
}

func readReceived(t *testing.T, conn *websocket.Conn, expected event.Type) protocol.ReceivePayload {
	envelope := readFrame(t, conn)
	require.Equal(t, string(expected), envelope.Type)
	payload, err := protocol.Payload[protocol.ReceivePayload](envelope)
	require.NoError(t, err)
	return payload
}

// expectSilence must be the last read on the connection: a read timeout breaks it.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected error %v", err)
}

func TestServer_Direct_Message_Reaches_Both_Ends(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	aliceConn, bobConn := h.dial(t, alice), h.dial(t, bob)

	// When alice sends "hi" to bob
	send(t, aliceConn, protocol.SendDirectMessageType, protocol.SendMessagePayload{
		Recipient: string(bob), Kind: "text", Content: "hi", CorrelationID: "c1",
	})

	// Then bob receives it exactly once
	received := readReceived(t, bobConn, event.DirectMessageReceivedType)
	req.Equal("hi", received.Message.Content)
	req.Equal(string(alice), received.Message.Sender.ID)
	req.Equal("alice", received.Message.Sender.FirstName)
	req.Equal("c1", received.CorrelationID)
	expectSilence(t, bobConn)

	// And alice gets her copy then the acknowledgement
	echo := readReceived(t, aliceConn, event.DirectMessageReceivedType)
	ack := readFrame(t, aliceConn)
	req.Equal(string(event.SendAcknowledgedType), ack.Type)
	ackPayload, err := protocol.Payload[protocol.AckPayload](ack)
	req.NoError(err)
	req.Equal(echo.Message.ID, ackPayload.Message.ID)

	// And the message was persisted before delivery
	stored, _, err := h.messages.GetMessages(chat.ConversationKey(alice, chat.DirectTarget{Recipient: bob}), nil)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(echo.Message.ID, stored[0].ID.String())
}

func TestServer_Channel_Message_Skips_Sender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, bob, carol := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")
	h.channel(t, "general", alice, bob, carol)
	aliceConn, bobConn, carolConn := h.dial(t, alice), h.dial(t, bob), h.dial(t, carol)

	send(t, aliceConn, protocol.SendChannelMessageType, protocol.SendMessagePayload{
		ChannelID: "general", Kind: "text", Content: "hello all", CorrelationID: "opt-1",
	})

	// Then bob and carol each receive one copy with the correlation id
	for _, conn := range []*websocket.Conn{bobConn, carolConn} {
		received := readReceived(t, conn, event.ChannelMessageReceivedType)
		req.Equal("opt-1", received.CorrelationID)
		req.Equal("general", received.Message.ChannelID)
		expectSilence(t, conn)
	}

	// And alice only gets the acknowledgement
	req.Equal(string(event.SendAcknowledgedType), readFrame(t, aliceConn).Type)
	expectSilence(t, aliceConn)
}

func TestServer_Channel_Message_From_Non_Member(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, bob, carol := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")
	// Given alice was removed from the channel
	h.channel(t, "general", bob, carol)
	aliceConn, bobConn, carolConn := h.dial(t, alice), h.dial(t, bob), h.dial(t, carol)

	send(t, aliceConn, protocol.SendChannelMessageType, protocol.SendMessagePayload{
		ChannelID: "general", Kind: "text", Content: "still here?", CorrelationID: "opt-2",
	})

	// Then alice is told she is not authorized
	envelope := readFrame(t, aliceConn)
	req.Equal(string(event.SendRejectedType), envelope.Type)
	rejection, err := protocol.Payload[protocol.ErrorPayload](envelope)
	req.NoError(err)
	req.Equal("opt-2", rejection.CorrelationID)
	req.Equal(string(errors.CodeUnauthorized), rejection.Code)
	req.False(rejection.Retryable)

	// And nothing was stored nor delivered
	stored, _, err := h.messages.GetMessages("ch:general", nil)
	req.NoError(err)
	req.Empty(stored)
	expectSilence(t, bobConn)
	expectSilence(t, carolConn)
}

func TestServer_Messages_Keep_Submission_Order(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	h.channel(t, "general", alice, bob)
	aliceConn, bobConn := h.dial(t, alice), h.dial(t, bob)

	// Back to back sends land in the same millisecond
	contents := make([]string, 100)
	for i := range contents {
		contents[i] = fmt.Sprintf("message %03d", i)
		send(t, aliceConn, protocol.SendChannelMessageType, protocol.SendMessagePayload{
			ChannelID: "general", Kind: "text", Content: contents[i], CorrelationID: fmt.Sprintf("corr-%d", i),
		})
	}

	for _, content := range contents {
		req.Equal(content, readReceived(t, bobConn, event.ChannelMessageReceivedType).Message.Content)
	}
	stored, _, err := h.messages.GetMessages("ch:general", nil)
	req.NoError(err)
	req.Len(stored, len(contents))
	for i, message := range stored {
		req.Equal(contents[i], message.Content)
	}
}

func TestServer_Join_Channel_Created_After_Connect(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, bob, mallory := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "mallory")
	bobConn, malloryConn := h.dial(t, bob), h.dial(t, mallory)
	h.channel(t, "late", alice, bob)

	// A non member cannot join
	send(t, malloryConn, protocol.JoinChannelType, protocol.ChannelPayload{ChannelID: "late"})
	envelope := readFrame(t, malloryConn)
	req.Equal(string(event.SendRejectedType), envelope.Type)

	// A member joins the group of a channel created after its connection
	send(t, bobConn, protocol.JoinChannelType, protocol.ChannelPayload{ChannelID: "late"})
	req.Eventually(func() bool { return len(h.registry.Group("late")) == 1 }, 2*time.Second, 5*time.Millisecond)

	send(t, bobConn, protocol.LeaveChannelType, protocol.ChannelPayload{ChannelID: "late"})
	req.Eventually(func() bool { return len(h.registry.Group("late")) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_Rejects_Bad_Frames(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	aliceConn := h.dial(t, alice)

	tests := []struct {
		name  string
		write func()
		code  errors.Code
	}{
		{"not json", func() { require.NoError(t, aliceConn.WriteMessage(websocket.TextMessage, []byte("garbage"))) }, errors.CodeValidation},
		{"unknown type", func() { send(t, aliceConn, "typing", protocol.ChannelPayload{}) }, errors.CodeValidation},
		{"claimed sender", func() {
			send(t, aliceConn, protocol.SendDirectMessageType, protocol.SendMessagePayload{
				Sender: string(bob), Recipient: string(bob), Kind: "text", Content: "hi", CorrelationID: "c",
			})
		}, errors.CodeUnauthorized},
		{"missing correlation id", func() {
			send(t, aliceConn, protocol.SendDirectMessageType, protocol.SendMessagePayload{Recipient: string(bob), Kind: "text", Content: "hi"})
		}, errors.CodeValidation},
		{"unknown recipient", func() {
			send(t, aliceConn, protocol.SendDirectMessageType, protocol.SendMessagePayload{Recipient: "ghost", Kind: "text", Content: "hi", CorrelationID: "c"})
		}, errors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			tt.write()
			envelope := readFrame(t, aliceConn)
			req.Equal(string(event.SendRejectedType), envelope.Type)
			payload, err := protocol.Payload[protocol.ErrorPayload](envelope)
			req.NoError(err)
			req.Equal(string(tt.code), payload.Code)
		})
	}
}

func TestServer_Handshake_Requires_Token(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.url+"/", nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.url+"/?token=forged", nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Reconnect_Replaces_Handle(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	first := h.dial(t, alice)
	firstSink, _ := h.registry.Lookup(alice)

	// When alice connects again then her first tab goes away
	h.dial(t, alice)
	req.Eventually(func() bool {
		sink, _ := h.registry.Lookup(alice)
		return sink != firstSink
	}, 2*time.Second, 5*time.Millisecond)
	secondSink, _ := h.registry.Lookup(alice)
	req.NoError(first.Close())
	req.Eventually(func() bool { return liveConnections(h.server) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Then the newest connection stays registered
	bobConn := h.dial(t, bob)
	send(t, bobConn, protocol.SendDirectMessageType, protocol.SendMessagePayload{Recipient: string(alice), Kind: "text", Content: "ping", CorrelationID: "c"})
	readReceived(t, bobConn, event.DirectMessageReceivedType)
	sink, ok := h.registry.Lookup(alice)
	req.True(ok)
	req.Equal(secondSink, sink)
}

func TestConnection_Stale_And_Full(t *testing.T) {
	req := require.New(t)
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	c := newConnection(logs.GetLoggerFromLevel(slog.LevelDebug), nil, "alice", cfg)
	evt := event.ChannelUpdated{Channel: chat.Channel{ID: "general"}}

	// Given nobody drains the buffer
	req.NoError(c.Consume(context.Background(), evt))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req.ErrorIs(c.Consume(ctx, evt), errors.ErrSinkFull)

	// When the connection is closed, its handle is inert
	c.Close()
	c.Close()
	req.ErrorIs(c.Consume(context.Background(), evt), errors.ErrConnectionClosed)
}
