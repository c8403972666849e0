package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMembershipResolver(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	channels := repositories.NewChannelRepository(openDB(t))
	resolver := NewMembershipResolver(channels)
	now := time.Now().UTC().Truncate(time.Millisecond)

	req.NoError(channels.CreateChannel(repositories.DiskChannel{ID: "general", Name: "general", Admin: "alice", Members: []string{"alice", "bob"}, CreatedAt: now, LastActivity: now}))
	req.NoError(channels.CreateChannel(repositories.DiskChannel{ID: "random", Name: "random", Admin: "bob", Members: []string{"bob"}, CreatedAt: now, LastActivity: now.Add(time.Minute)}))

	members, err := resolver.MembersOf(ctx, "general")
	req.NoError(err)
	req.Equal(chat.NewSet("alice", "bob"), members)

	member, err := resolver.IsMember(ctx, "random", "alice")
	req.NoError(err)
	req.False(member)

	ids, err := resolver.ChannelsOf(ctx, "bob")
	req.NoError(err)
	req.Equal([]chat.ChannelID{"random", "general"}, ids)

	// Unknown channel
	_, err = resolver.MembersOf(ctx, "nope")
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = resolver.IsMember(ctx, "nope", "alice")
	req.ErrorIs(err, errors.ErrNotFound)
}
