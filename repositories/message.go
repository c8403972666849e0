//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(conversation string, cursor *string) ([]DiskMessage, *string, error)
	DeleteConversation(conversation string) (int, error)
	GetContacts(userID string) ([]DiskContact, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the stored form of a message.
// Exactly one of Recipient and Channel is set.
type DiskMessage struct {
	ID            uuid.UUID
	Conversation  string
	Sender        string
	Recipient     *string
	Channel       *string
	MessageType   string
	Content       string
	FileURL       string
	FileName      string
	FileSize      int64
	CorrelationID string
	At            time.Time
}

type messageDocument struct {
	ID            string    `bson:"_id"`
	Conversation  string    `bson:"conversation"`
	Sender        string    `bson:"sender"`
	Recipient     *string   `bson:"recipient,omitempty"`
	Channel       *string   `bson:"channel,omitempty"`
	MessageType   string    `bson:"messageType"`
	Content       string    `bson:"content,omitempty"`
	FileURL       string    `bson:"fileUrl,omitempty"`
	FileName      string    `bson:"fileName,omitempty"`
	FileSize      int64     `bson:"fileSize,omitempty"`
	CorrelationID string    `bson:"correlationId,omitempty"`
	Timestamp     time.Time `bson:"timestamp"`
}

// DiskContact summarizes a direct conversation for one of its ends.
type DiskContact struct {
	Peer         string    `bson:"peer"`
	LastMessage  string    `bson:"lastMessage,omitempty"`
	LastSender   string    `bson:"lastSender"`
	LastActivity time.Time `bson:"lastActivity"`
}

// contactKey indexes the direct conversations of a user: "contact:{user}:{peer}".
func contactKey(userID, peer string) []byte {
	return []byte(fmt.Sprintf("contact:%s:%s", userID, peer))
}

func messagePrefix(conversation string) string {
	return fmt.Sprintf("msg:%s:", conversation)
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Keep two messages stored at the same nanosecond apart, thanks to the uuid.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("%s%019d:%s",
		messagePrefix(message.Conversation),
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := bson.Marshal(lo.ToPtr(fromDiskMessage(message)))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		if message.Recipient == nil {
			return nil
		}
		contact := DiskContact{
			LastMessage:  lo.Ternary(message.FileName != "", message.FileName, message.Content),
			LastSender:   message.Sender,
			LastActivity: message.At,
		}
		for user, peer := range map[string]string{message.Sender: *message.Recipient, *message.Recipient: message.Sender} {
			contact.Peer = peer
			if err := touchContact(txn, user, contact); err != nil {
				return err
			}
		}
		return nil
	})
}

// touchContact writes the summary unless a newer message is already recorded.
func touchContact(txn *badger.Txn, userID string, contact DiskContact) error {
	key := contactKey(userID, contact.Peer)
	item, err := txn.Get(key)
	switch {
	case err == nil:
		var current DiskContact
		if err = item.Value(func(val []byte) error { return bson.Unmarshal(val, &current) }); err != nil {
			return err
		}
		if current.LastActivity.After(contact.LastActivity) {
			return nil
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}
	data, err := bson.Marshal(contact)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// GetContacts lists the direct conversations of a user, most recent first.
func (m MessageRepository) GetContacts(userID string) ([]DiskContact, error) {
	var contacts []DiskContact
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := contactKey(userID, "")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var contact DiskContact
			if err := it.Item().Value(func(val []byte) error {
				return bson.Unmarshal(val, &contact)
			}); err != nil {
				return err
			}
			contact.LastActivity = contact.LastActivity.UTC()
			contacts = append(contacts, contact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].LastActivity.After(contacts[j].LastActivity)
	})
	return contacts, nil
}

// DeleteConversation removes every message of a conversation and returns how many were removed.
func (m MessageRepository) DeleteConversation(conversation string) (int, error) {
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(conversation))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := m.db.NewWriteBatch()
	for _, key := range keys {
		if err = wb.Delete(key); err != nil {
			wb.Cancel()
			return 0, err
		}
	}
	if err = wb.Flush(); err != nil {
		return 0, err
	}
	m.log.Debug("Conversation deleted", "conversation", conversation, "messages", len(keys))
	return len(keys), nil
}

// GetMessages returns a page of the most recent messages of a conversation, in
// ascending timestamp order.
// The returned cursor points before the oldest message of the page, nil when there is
// nothing older. Passing it back returns the previous page.
func (m MessageRepository) GetMessages(conversation string, cursor *string) ([]DiskMessage, *string, error) {
	var byteMessages [][]byte
	var nextCursor *string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(conversation)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		var lastKey string
		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				nextCursor = lo.ToPtr(lastKey)
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			byteMessages = append(byteMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	diskMessages := make([]DiskMessage, 0, len(byteMessages))
	for _, b := range lo.Reverse(byteMessages) {
		var document messageDocument
		if err = bson.Unmarshal(b, &document); err != nil {
			return nil, nil, err
		}
		message, err := toDiskMessage(document)
		if err != nil {
			return nil, nil, err
		}
		diskMessages = append(diskMessages, message)
	}
	return diskMessages, nextCursor, nil
}

func fromDiskMessage(message DiskMessage) messageDocument {
	return messageDocument{
		ID:            message.ID.String(),
		Conversation:  message.Conversation,
		Sender:        message.Sender,
		Recipient:     message.Recipient,
		Channel:       message.Channel,
		MessageType:   message.MessageType,
		Content:       message.Content,
		FileURL:       message.FileURL,
		FileName:      message.FileName,
		FileSize:      message.FileSize,
		CorrelationID: message.CorrelationID,
		Timestamp:     message.At,
	}
}

func toDiskMessage(document messageDocument) (DiskMessage, error) {
	parsedID, err := uuid.Parse(document.ID)
	if err != nil {
		return DiskMessage{}, err
	}
	return DiskMessage{
		ID:            parsedID,
		Conversation:  document.Conversation,
		Sender:        document.Sender,
		Recipient:     document.Recipient,
		Channel:       document.Channel,
		MessageType:   document.MessageType,
		Content:       document.Content,
		FileURL:       document.FileURL,
		FileName:      document.FileName,
		FileSize:      document.FileSize,
		CorrelationID: document.CorrelationID,
		At:            document.Timestamp.UTC(),
	}, nil
}
