//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=../mocks/mock_channel_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

type IChannelRepository interface {
	CreateChannel(channel DiskChannel) error
	GetChannel(id string) (DiskChannel, error)
	ModifyChannel(id string, change func(channel *DiskChannel) error) (DiskChannel, error)
	DeleteChannel(id string) (DiskChannel, error)
	GetChannelsForUser(userID string) ([]DiskChannel, error)
	TouchChannel(id, lastMessage string, at time.Time) error
}

// maxConflictRetries bounds how many times a conflicting channel write is replayed.
const maxConflictRetries = 5

type ChannelRepository struct {
	db *badger.DB
}

func NewChannelRepository(db *badger.DB) IChannelRepository {
	return &ChannelRepository{db: db}
}

type DiskChannel struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Description  string    `bson:"description,omitempty"`
	Admin        string    `bson:"admin"`
	Members      []string  `bson:"members"`
	Image        string    `bson:"image,omitempty"`
	IsPrivate    bool      `bson:"isPrivate"`
	LastMessage  string    `bson:"lastMessage,omitempty"`
	LastActivity time.Time `bson:"lastActivity"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func channelKey(id string) []byte {
	return []byte("channel:" + id)
}

// memberKey indexes the channels of a user: "member:{user}:{channel}".
func memberKey(userID, channelID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", userID, channelID))
}

// CreateChannel stores the channel document and one membership index entry per member.
func (r ChannelRepository) CreateChannel(channel DiskChannel) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(channelKey(channel.ID)); err == nil {
			return fmt.Errorf("%w: channel %s already exists", errors.ErrValidation, channel.ID)
		}
		return putChannel(txn, channel, nil)
	})
}

func (r ChannelRepository) GetChannel(id string) (DiskChannel, error) {
	var channel DiskChannel
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		channel, err = getChannel(txn, id)
		return err
	})
	return channel, err
}

// ModifyChannel reads, changes and writes back a channel inside one transaction and
// keeps the membership index in sync. When a concurrent write to the same channel
// commits first, the transaction is replayed on the fresh document, so change may
// run more than once and must not have side effects.
func (r ChannelRepository) ModifyChannel(id string, change func(channel *DiskChannel) error) (DiskChannel, error) {
	var channel DiskChannel
	for attempt := 0; ; attempt++ {
		err := r.db.Update(func(txn *badger.Txn) error {
			previous, err := getChannel(txn, id)
			if err != nil {
				return err
			}
			channel = previous
			channel.Members = slices.Clone(previous.Members)
			if err = change(&channel); err != nil {
				return err
			}
			channel.ID = id
			channel.Members = lo.Uniq(channel.Members)
			return putChannel(txn, channel, previous.Members)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return channel, err
	}
}

// DeleteChannel removes the channel document and its membership index, and returns
// the deleted channel.
func (r ChannelRepository) DeleteChannel(id string) (DiskChannel, error) {
	var channel DiskChannel
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		if channel, err = getChannel(txn, id); err != nil {
			return err
		}
		for _, member := range channel.Members {
			if err = txn.Delete(memberKey(member, id)); err != nil {
				return err
			}
		}
		return txn.Delete(channelKey(id))
	})
	return channel, err
}

// GetChannelsForUser lists the channels of a user, most recently active first.
func (r ChannelRepository) GetChannelsForUser(userID string) ([]DiskChannel, error) {
	var channels []DiskChannel
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("member:%s:", userID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		for _, id := range ids {
			channel, err := getChannel(txn, id)
			if err != nil {
				return err
			}
			channels = append(channels, channel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].LastActivity.After(channels[j].LastActivity)
	})
	return channels, nil
}

// TouchChannel records the last message of a channel. An older message never
// replaces a newer one.
func (r ChannelRepository) TouchChannel(id, lastMessage string, at time.Time) error {
	_, err := r.ModifyChannel(id, func(channel *DiskChannel) error {
		if at.Before(channel.LastActivity) {
			return nil
		}
		channel.LastMessage = lastMessage
		channel.LastActivity = at
		return nil
	})
	return err
}

func getChannel(txn *badger.Txn, id string) (DiskChannel, error) {
	var channel DiskChannel
	item, err := txn.Get(channelKey(id))
	if err != nil {
		return channel, notFound(err, "channel "+id)
	}
	err = item.Value(func(val []byte) error {
		return bson.Unmarshal(val, &channel)
	})
	channel.LastActivity = channel.LastActivity.UTC()
	channel.CreatedAt = channel.CreatedAt.UTC()
	return channel, err
}

func putChannel(txn *badger.Txn, channel DiskChannel, previousMembers []string) error {
	channel.Members = lo.Uniq(channel.Members)
	data, err := bson.Marshal(channel)
	if err != nil {
		return err
	}
	if err = txn.Set(channelKey(channel.ID), data); err != nil {
		return err
	}
	removed, _ := lo.Difference(previousMembers, channel.Members)
	for _, member := range removed {
		if err = txn.Delete(memberKey(member, channel.ID)); err != nil {
			return err
		}
	}
	for _, member := range channel.Members {
		if err = txn.Set(memberKey(member, channel.ID), nil); err != nil {
			return err
		}
	}
	return nil
}
