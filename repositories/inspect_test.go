package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	// Given a user, a channel and a message stored by the repositories
	userID, err := NewUserRepository(db).CreateUser("alice@example.com", "hash", Profile{FirstName: "Alice"})
	req.NoError(err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	req.NoError(NewChannelRepository(db).CreateChannel(DiskChannel{
		ID: "general", Name: "General", Admin: userID, Members: []string{userID}, CreatedAt: now, LastActivity: now,
	}))
	req.NoError(NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), nil).StoreMessage(DiskMessage{
		ID: uuid.New(), Conversation: "ch:general", Sender: userID, MessageType: "text", Content: "hello", At: now,
	}))

	// When every entry is described
	kinds := map[string]Record{}
	req.NoError(db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			record := Describe(string(it.Item().Key()), value)
			kinds[record.Kind] = record
		}
		return nil
	}))

	// Then each kind of record is decoded
	req.Equal("Alice  <alice@example.com>", kinds["USER"].Detail)
	req.Equal(userID, kinds["EMAIL"].Detail)
	req.Equal("General, 1 members, admin "+userID, kinds["CHANNEL"].Detail)
	req.Equal("ch:general "+userID+": hello", kinds["MESSAGE"].Detail)
	req.Contains(kinds, "MEMBER")
	req.Equal("UNKNOWN", Describe("other", []byte("abc")).Kind)
}
