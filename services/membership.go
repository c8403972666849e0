package services

import (
	"chat-relay/domain/chat"
	"chat-relay/repositories"
	"context"

	"github.com/samber/lo"
)

// MembershipResolver answers who belongs to a channel.
// It reads the channel repository on every call, so a membership change is
// visible to the next send without any cache to invalidate.
type MembershipResolver struct {
	channels repositories.IChannelRepository
}

func NewMembershipResolver(channels repositories.IChannelRepository) *MembershipResolver {
	return &MembershipResolver{channels: channels}
}

// MembersOf returns errors.ErrNotFound for an unknown channel.
func (r *MembershipResolver) MembersOf(_ context.Context, channelID chat.ChannelID) (chat.Set, error) {
	channel, err := r.channels.GetChannel(string(channelID))
	if err != nil {
		return nil, storageError(err)
	}
	return chat.NewSet(toChannel(channel).Members...), nil
}

func (r *MembershipResolver) IsMember(ctx context.Context, channelID chat.ChannelID, userID chat.UserID) (bool, error) {
	members, err := r.MembersOf(ctx, channelID)
	if err != nil {
		return false, err
	}
	return members.Has(userID), nil
}

func (r *MembershipResolver) ChannelsOf(_ context.Context, userID chat.UserID) ([]chat.ChannelID, error) {
	channels, err := r.channels.GetChannelsForUser(string(userID))
	if err != nil {
		return nil, storageError(err)
	}
	return lo.Map(channels, func(channel repositories.DiskChannel, _ int) chat.ChannelID {
		return chat.ChannelID(channel.ID)
	}), nil
}
