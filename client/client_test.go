package client

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/websocket"
	"chat-relay/observability"
	"chat-relay/projection"
	"chat-relay/protocol"
	"chat-relay/repositories"
	"chat-relay/runtime"
	indexing "chat-relay/search"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const password = "Correct-Horse-42"

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

// startServer runs the whole server in memory and returns its base url.
func startServer(t *testing.T) (string, *runtime.Registry, *indexing.Index) {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	signer := auth.NewSigner("client-secret", time.Hour)
	users := repositories.NewUserRepository(db)
	channels := repositories.NewChannelRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(log, registry, time.Second)
	membership := services.NewMembershipResolver(channels)
	index := indexing.NewIndex(writer, log)
	gateway := services.NewMessageGateway(log, messages, users, channels, nil, nil)
	chatService := services.NewChatService(log, registry, membership, gateway, dispatcher, messages, users)
	health, err := observability.NewHealth(registry.Online)
	require.NoError(t, err)

	wsServer := websocket.NewServer(log, chatService, websocket.DefaultConfig())
	router := rest.NewRouter(log, signer, rest.Services{
		Auth:     services.NewAuthService(users, signer),
		Chat:     chatService,
		Channels: services.NewChannelService(log, channels, messages, users, registry, dispatcher),
		Contacts: services.NewContactService(users, messages),
		Files:    services.NewFileService(log, t.TempDir(), 1024),
		Search:   services.NewSearchService(index, membership),
		Health:   health,
	}, wsServer, 5*time.Second, 1024)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = wsServer.Shutdown(ctx)
	})
	return ts.URL, registry, index
}

func connected(t *testing.T, serverURL string, registry *runtime.Registry, name string) *Client {
	c := New(logs.GetLoggerFromLevel(slog.LevelDebug), Options{ServerURL: serverURL})
	profile, err := c.Register(context.Background(), protocol.RegisterRequest{
		Email: name + "@example.com", Password: password, FirstName: name,
	})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, func() bool {
		_, ok := registry.Lookup(profile.ID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

func eventuallyEntries(t *testing.T, conversation *projection.Conversation, check func([]projection.Entry) bool) []projection.Entry {
	var entries []projection.Entry
	require.Eventually(t, func() bool {
		entries = conversation.Entries()
		return check(entries)
	}, 2*time.Second, 10*time.Millisecond)
	return entries
}

func TestClient_Direct_Message_Reconciled(t *testing.T) {
	req := require.New(t)
	serverURL, registry, _ := startServer(t)
	alice := connected(t, serverURL, registry, "alice")
	bob := connected(t, serverURL, registry, "bob")

	// When alice sends a direct message to bob
	correlationID, err := alice.SendDirect(bob.Self().ID, chat.TextBody{Content: "hi bob"})
	req.NoError(err)
	key := chat.ConversationKey(alice.Self().ID, chat.DirectTarget{Recipient: bob.Self().ID})

	// Then her optimistic entry is confirmed in place, never duplicated
	entries := eventuallyEntries(t, alice.Conversation(key), func(entries []projection.Entry) bool {
		return len(entries) == 1 && entries[0].State == projection.Confirmed
	})
	req.NotEqual(uuid.Nil, entries[0].Message.ID)
	req.Equal(correlationID, entries[0].Message.CorrelationID)

	// And bob holds the same durable message
	received := eventuallyEntries(t, bob.Conversation(key), func(entries []projection.Entry) bool {
		return len(entries) == 1
	})
	req.Equal(entries[0].Message.ID, received[0].Message.ID)
	req.Equal(chat.TextBody{Content: "hi bob"}, received[0].Message.Body)
}

func TestClient_Channel_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	serverURL, registry, _ := startServer(t)
	alice := connected(t, serverURL, registry, "alice")
	bob := connected(t, serverURL, registry, "bob")

	// Given a channel created while both are connected
	channel, err := alice.CreateChannel(ctx, "general", bob.Self().ID)
	req.NoError(err)
	key := chat.ConversationKey(alice.Self().ID, chat.ChannelTarget{Channel: channel.ID})

	// When alice writes in it
	_, err = alice.SendChannel(channel.ID, chat.TextBody{Content: "welcome"})
	req.NoError(err)

	// Then both views hold one confirmed message
	sent := eventuallyEntries(t, alice.Conversation(key), func(entries []projection.Entry) bool {
		return len(entries) == 1 && entries[0].State == projection.Confirmed
	})
	received := eventuallyEntries(t, bob.Conversation(key), func(entries []projection.Entry) bool {
		return len(entries) == 1
	})
	req.Equal(sent[0].Message.ID, received[0].Message.ID)

	// And the history merges without duplicates
	req.NoError(bob.LoadChannelHistory(ctx, channel.ID))
	req.Len(bob.Conversation(key).Entries(), 1)

	channels, err := bob.Channels(ctx)
	req.NoError(err)
	req.Len(channels, 1)
	req.Equal("welcome", channels[0].LastMessage)

	// Only the admin deletes the channel
	var remote protocol.RemoteError
	req.True(errors.As(bob.DeleteChannel(ctx, channel.ID), &remote))
	req.Equal(errors.CodeUnauthorized, remote.Code)
	req.NoError(alice.DeleteChannel(ctx, channel.ID))
	channels, err = bob.Channels(ctx)
	req.NoError(err)
	req.Empty(channels)
}

func TestClient_Rejected_Send_Fails(t *testing.T) {
	req := require.New(t)
	serverURL, registry, _ := startServer(t)
	alice := connected(t, serverURL, registry, "alice")

	// When alice writes to somebody unknown
	stranger := chat.UserID(uuid.NewString())
	_, err := alice.SendDirect(stranger, chat.TextBody{Content: "anyone?"})
	req.NoError(err)

	// Then her optimistic entry is marked failed
	key := chat.ConversationKey(alice.Self().ID, chat.DirectTarget{Recipient: stranger})
	eventuallyEntries(t, alice.Conversation(key), func(entries []projection.Entry) bool {
		return len(entries) == 1 && entries[0].State == projection.Failed
	})

	update := <-alice.Updates()
	req.Equal(key, update.Conversation)
}

func TestClient_Files_Search_And_Contacts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	serverURL, registry, index := startServer(t)
	alice := connected(t, serverURL, registry, "alice")
	bob := connected(t, serverURL, registry, "bob")

	// A file is uploaded then shared
	file, err := alice.UploadFile(ctx, "holiday.png", bytes.NewReader(pngHeader))
	req.NoError(err)
	req.Equal("holiday.png", file.Name)
	_, err = alice.SendDirect(bob.Self().ID, file)
	req.NoError(err)

	key := chat.ConversationKey(alice.Self().ID, chat.DirectTarget{Recipient: bob.Self().ID})
	received := eventuallyEntries(t, bob.Conversation(key), func(entries []projection.Entry) bool {
		return len(entries) == 1
	})
	req.NoError(index.Add(received[0].Message))

	// The file name is searchable in the conversation
	hits, err := bob.SearchMessages(ctx, search.NewSearchQuery("/find holiday --with "+string(alice.Self().ID)))
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(received[0].Message.ID.String(), hits[0].MessageID)

	// A refused upload carries the server error
	_, err = alice.UploadFile(ctx, "notes.png", bytes.NewReader([]byte("not a picture at all")))
	var remote protocol.RemoteError
	req.True(errors.As(err, &remote))
	req.Equal(errors.CodeValidation, remote.Code)

	contacts, err := alice.SearchContacts(ctx, "bob")
	req.NoError(err)
	req.Len(contacts, 1)
	req.Equal(bob.Self().ID, contacts[0].ID)

	// The shared file shows up as the preview of the direct conversation
	direct, err := bob.DirectContacts(ctx)
	req.NoError(err)
	req.Len(direct, 1)
	req.Equal(alice.Self().ID, direct[0].Profile.ID)
	req.Equal("holiday.png", direct[0].LastMessage)
	req.Equal(alice.Self().ID, direct[0].LastSender)
}

func TestClient_Expire_Pending(t *testing.T) {
	req := require.New(t)
	c := New(logs.GetLoggerFromLevel(slog.LevelDebug), Options{PendingTimeout: time.Minute})
	c.self = chat.Profile{ID: "alice"}

	// Given a message never confirmed, because there is no live connection
	_, err := c.SendDirect("bob", chat.TextBody{Content: "lost"})
	req.ErrorIs(err, errors.ErrConnectionClosed)

	key := chat.ConversationKey("alice", chat.DirectTarget{Recipient: "bob"})
	entries := c.Conversation(key).Entries()
	req.Len(entries, 1)
	req.Equal(projection.Failed, entries[0].State)
	req.Empty(c.pending)

	// And one still pending past its timeout
	c.Conversation(key).AddOptimistic(chat.Message{
		Sender: c.self, Target: chat.DirectTarget{Recipient: "bob"},
		Body: chat.TextBody{Content: "slow"}, CreatedAt: time.Now().UTC(),
	}, "slow-1")
	c.pending["slow-1"] = key

	c.expire(time.Now().Add(2 * time.Minute))

	req.Equal(projection.Failed, c.Conversation(key).Entries()[1].State)
	req.Empty(c.pending)
}
