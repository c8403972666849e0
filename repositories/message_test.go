package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func channelDiskMessage(channel, sender, content string, at time.Time) DiskMessage {
	return DiskMessage{
		ID:            uuid.New(),
		Conversation:  "ch:" + channel,
		Sender:        sender,
		Channel:       lo.ToPtr(channel),
		MessageType:   "text",
		Content:       content,
		CorrelationID: uuid.NewString(),
		At:            at,
	}
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	content := "this message will self destruct in 5 seconds"
	at := time.Now().UTC().Truncate(time.Millisecond)

	// Given three messages stored out of order
	diskMessages := []DiskMessage{
		channelDiskMessage("general", "Clara", content, at.Add(2*time.Minute)),
		channelDiskMessage("general", "Alice", content, at),
		channelDiskMessage("general", "Bob", content, at.Add(1*time.Minute)),
	}
	for _, dm := range diskMessages {
		req.NoError(repository.StoreMessage(dm))
	}

	// When the whole conversation is fetched
	fetchedMessages, cursor, err := repository.GetMessages("ch:general", nil)

	// Then messages come back in ascending timestamp order
	req.NoError(err)
	req.Nil(cursor)
	req.Equal([]DiskMessage{diskMessages[1], diskMessages[2], diskMessages[0]}, fetchedMessages)
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	at := time.Now().UTC().Truncate(time.Millisecond)

	var stored []DiskMessage
	for i := 0; i < 5; i++ {
		dm := channelDiskMessage("general", "Alice", "hello", at.Add(time.Duration(i)*time.Second))
		req.NoError(repository.StoreMessage(dm))
		stored = append(stored, dm)
	}

	// When the first page is fetched
	page, cursor, err := repository.GetMessages("ch:general", nil)

	// Then the two most recent messages are returned
	req.NoError(err)
	req.Equal(stored[3:5], page)
	req.NotNil(cursor)

	// When the previous pages are fetched
	page, cursor, err = repository.GetMessages("ch:general", cursor)
	req.NoError(err)
	req.Equal(stored[1:3], page)
	req.NotNil(cursor)

	page, cursor, err = repository.GetMessages("ch:general", cursor)
	req.NoError(err)
	req.Equal(stored[0:1], page)

	// Then the last page has no cursor
	req.Nil(cursor)
}

func Test_Conversations_Are_Isolated(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC().Truncate(time.Millisecond)

	direct := DiskMessage{
		ID:            uuid.New(),
		Conversation:  "dm:alice:bob",
		Sender:        "alice",
		Recipient:     lo.ToPtr("bob"),
		MessageType:   "file",
		FileURL:       "files/1700000000000/cat.png",
		FileName:      "cat.png",
		FileSize:      2048,
		CorrelationID: "corr",
		At:            at,
	}
	req.NoError(repository.StoreMessage(direct))
	req.NoError(repository.StoreMessage(channelDiskMessage("general", "alice", "hi", at)))

	// When the direct conversation is fetched
	fetched, _, err := repository.GetMessages("dm:alice:bob", nil)

	// Then only its message is returned, with every field preserved
	req.NoError(err)
	req.Equal([]DiskMessage{direct}, fetched)
	req.Nil(fetched[0].Channel)
}

func Test_Unknown_Conversation_Is_Empty(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)

	fetched, cursor, err := repository.GetMessages("ch:nowhere", nil)

	req.NoError(err)
	req.Empty(fetched)
	req.Nil(cursor)
}

func directDiskMessage(sender, recipient, content string, at time.Time) DiskMessage {
	ends := []string{sender, recipient}
	if recipient < sender {
		ends = []string{recipient, sender}
	}
	return DiskMessage{
		ID:            uuid.New(),
		Conversation:  "dm:" + ends[0] + ":" + ends[1],
		Sender:        sender,
		Recipient:     lo.ToPtr(recipient),
		MessageType:   "text",
		Content:       content,
		CorrelationID: uuid.NewString(),
		At:            at,
	}
}

func Test_Contacts_Follow_Direct_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC().Truncate(time.Millisecond)

	// Given alice talked with bob, then with carol, and a channel message
	req.NoError(repository.StoreMessage(directDiskMessage("alice", "bob", "hi bob", at)))
	req.NoError(repository.StoreMessage(directDiskMessage("carol", "alice", "hi alice", at.Add(time.Minute))))
	req.NoError(repository.StoreMessage(channelDiskMessage("general", "alice", "hi all", at.Add(2*time.Minute))))
	// And an older message stored late does not replace the newer summary
	req.NoError(repository.StoreMessage(directDiskMessage("bob", "alice", "late", at.Add(-time.Minute))))
	file := directDiskMessage("bob", "alice", "", at.Add(3*time.Minute))
	file.MessageType, file.FileURL, file.FileName = "file", "files/1/plan.pdf", "plan.pdf"
	req.NoError(repository.StoreMessage(file))

	// When alice lists her direct contacts
	contacts, err := repository.GetContacts("alice")

	// Then the most recent conversation comes first with its last message
	req.NoError(err)
	req.Equal([]DiskContact{
		{Peer: "bob", LastMessage: "plan.pdf", LastSender: "bob", LastActivity: at.Add(3 * time.Minute)},
		{Peer: "carol", LastMessage: "hi alice", LastSender: "carol", LastActivity: at.Add(time.Minute)},
	}, contacts)

	// And the other end sees the same conversation
	contacts, err = repository.GetContacts("carol")
	req.NoError(err)
	req.Len(contacts, 1)
	req.Equal("alice", contacts[0].Peer)

	contacts, err = repository.GetContacts("nobody")
	req.NoError(err)
	req.Empty(contacts)
}

func Test_Delete_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC().Truncate(time.Millisecond)

	// Given two channels with messages, one name prefixing the other
	for i := 0; i < 3; i++ {
		req.NoError(repository.StoreMessage(channelDiskMessage("general", "alice", "hello", at.Add(time.Duration(i)*time.Second))))
	}
	req.NoError(repository.StoreMessage(channelDiskMessage("general-2", "alice", "kept", at)))

	// When the first channel conversation is deleted
	removed, err := repository.DeleteConversation("ch:general")

	// Then only its messages are gone
	req.NoError(err)
	req.Equal(3, removed)
	messages, _, err := repository.GetMessages("ch:general", nil)
	req.NoError(err)
	req.Empty(messages)
	messages, _, err = repository.GetMessages("ch:general-2", nil)
	req.NoError(err)
	req.Len(messages, 1)
}
