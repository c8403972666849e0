package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

type CreateChannelRequest struct {
	Name        string        `json:"name" validate:"required,max=100"`
	Description string        `json:"description" validate:"max=500"`
	Members     []chat.UserID `json:"members" validate:"max=500"`
	Image       string        `json:"image" validate:"max=1024"`
	IsPrivate   bool          `json:"isPrivate"`
}

// UpdateChannelRequest changes only the fields which are set.
type UpdateChannelRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Image       *string `json:"image" validate:"omitempty,max=1024"`
	IsPrivate   *bool   `json:"isPrivate"`
}

type IChannelService interface {
	CreateChannel(ctx context.Context, admin chat.UserID, req CreateChannelRequest) (chat.Channel, error)
	GetChannels(ctx context.Context, userID chat.UserID) ([]chat.Channel, error)
	GetChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID) (chat.Channel, error)
	UpdateChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, req UpdateChannelRequest) (chat.Channel, error)
	AddMember(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, memberID chat.UserID) (chat.Channel, error)
	RemoveMember(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, memberID chat.UserID) (chat.Channel, error)
	DeleteChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID) error
}

// ChannelService is the channel CRUD collaborator.
// Every change is pushed to the channel group as channel-updated (channel-deleted
// on deletion), and the live connections of added or removed members join or leave the group.
type ChannelService struct {
	log        *slog.Logger
	channels   repositories.IChannelRepository
	messages   repositories.IMessageRepository
	users      repositories.IUserRepository
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
	now        func() time.Time
}

func NewChannelService(
	log *slog.Logger,
	channels repositories.IChannelRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	registry contract.IRegistry,
	dispatcher contract.IDispatcher,
) *ChannelService {
	return &ChannelService{
		log:        log,
		channels:   channels,
		messages:   messages,
		users:      users,
		registry:   registry,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// CreateChannel makes the creator the admin and a member of the new channel.
func (s *ChannelService) CreateChannel(ctx context.Context, admin chat.UserID, req CreateChannelRequest) (chat.Channel, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return chat.Channel{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	members := lo.Uniq(append([]chat.UserID{admin}, req.Members...))
	for _, member := range members {
		if _, err := s.users.GetUser(string(member)); err != nil {
			return chat.Channel{}, storageError(err)
		}
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	channel := chat.Channel{
		ID:           chat.ChannelID(uuid.NewString()),
		Name:         req.Name,
		Description:  req.Description,
		Admin:        admin,
		Members:      members,
		Image:        req.Image,
		IsPrivate:    req.IsPrivate,
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := s.channels.CreateChannel(fromChannel(channel)); err != nil {
		return chat.Channel{}, storageError(err)
	}
	s.log.Info("Channel created", "channel_id", channel.ID, "admin", admin, "members", len(members))

	s.syncGroup(channel.ID, members, nil)
	s.dispatcher.Broadcast(ctx, channel.ID, event.ChannelUpdated{Channel: channel})
	return channel, nil
}

// GetChannels lists the channels of the user, most recently active first.
func (s *ChannelService) GetChannels(_ context.Context, userID chat.UserID) ([]chat.Channel, error) {
	channels, err := s.channels.GetChannelsForUser(string(userID))
	if err != nil {
		return nil, storageError(err)
	}
	return lo.Map(channels, func(channel repositories.DiskChannel, _ int) chat.Channel {
		return toChannel(channel)
	}), nil
}

// GetChannel is restricted to the members of the channel.
func (s *ChannelService) GetChannel(_ context.Context, userID chat.UserID, channelID chat.ChannelID) (chat.Channel, error) {
	channel, err := s.load(channelID)
	if err != nil {
		return chat.Channel{}, err
	}
	if !channel.HasMember(userID) {
		return chat.Channel{}, fmt.Errorf("%w: %s is not a member of %s", errors.ErrUnauthorized, userID, channelID)
	}
	return channel, nil
}

// UpdateChannel is restricted to the admin of the channel.
func (s *ChannelService) UpdateChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, req UpdateChannelRequest) (chat.Channel, error) {
	if err := validate.Struct(req); err != nil {
		return chat.Channel{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	channel, _, err := s.modifyAsAdmin(userID, channelID, func(channel *chat.Channel) (bool, error) {
		if req.Name != nil {
			channel.Name = strings.TrimSpace(*req.Name)
		}
		channel.Description = lo.FromPtrOr(req.Description, channel.Description)
		channel.Image = lo.FromPtrOr(req.Image, channel.Image)
		channel.IsPrivate = lo.FromPtrOr(req.IsPrivate, channel.IsPrivate)
		if channel.Name == "" {
			return false, fmt.Errorf("%w: channel name is blank", errors.ErrValidation)
		}
		return true, nil
	})
	if err != nil {
		return chat.Channel{}, err
	}
	s.dispatcher.Broadcast(ctx, channelID, event.ChannelUpdated{Channel: channel})
	return channel, nil
}

// AddMember is restricted to the admin, who brings an existing user into the channel.
func (s *ChannelService) AddMember(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, memberID chat.UserID) (chat.Channel, error) {
	if _, err := s.users.GetUser(string(memberID)); err != nil {
		return chat.Channel{}, storageError(err)
	}
	channel, changed, err := s.modifyAsAdmin(userID, channelID, func(channel *chat.Channel) (bool, error) {
		if channel.HasMember(memberID) {
			return false, nil
		}
		channel.Members = append(channel.Members, memberID)
		return true, nil
	})
	if err != nil || !changed {
		return channel, err
	}
	s.syncGroup(channelID, []chat.UserID{memberID}, nil)
	s.dispatcher.Broadcast(ctx, channelID, event.ChannelUpdated{Channel: channel})
	return channel, nil
}

// RemoveMember is restricted to the admin. The admin cannot be removed.
func (s *ChannelService) RemoveMember(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, memberID chat.UserID) (chat.Channel, error) {
	channel, changed, err := s.modifyAsAdmin(userID, channelID, func(channel *chat.Channel) (bool, error) {
		if memberID == channel.Admin {
			return false, fmt.Errorf("%w: the admin cannot leave %s", errors.ErrValidation, channelID)
		}
		if !channel.HasMember(memberID) {
			return false, nil
		}
		channel.Members = lo.Without(channel.Members, memberID)
		return true, nil
	})
	if err != nil || !changed {
		return channel, err
	}
	// Notify the removed member before its connection leaves the group
	s.dispatcher.Broadcast(ctx, channelID, event.ChannelUpdated{Channel: channel})
	s.syncGroup(channelID, nil, []chat.UserID{memberID})
	return channel, nil
}

// DeleteChannel is restricted to the admin. The messages of the channel are deleted
// with it and every live member connection leaves the group.
func (s *ChannelService) DeleteChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID) error {
	if _, err := s.loadAsAdmin(userID, channelID); err != nil {
		return err
	}
	disk, err := s.channels.DeleteChannel(string(channelID))
	if err != nil {
		return storageError(err)
	}
	channel := toChannel(disk)

	removed, err := s.messages.DeleteConversation(chat.ConversationKey(userID, chat.ChannelTarget{Channel: channelID}))
	if err != nil {
		s.log.Error("Channel messages not deleted", "channel_id", channelID, "error", err)
	}
	s.log.Info("Channel deleted", "channel_id", channelID, "admin", userID, "messages", removed)

	s.dispatcher.Broadcast(ctx, channelID, event.ChannelDeleted{ChannelID: channelID})
	s.syncGroup(channelID, nil, channel.Members)
	return nil
}

// modifyAsAdmin applies a change to the stored channel in one transaction, after
// checking the user is its admin. The change reports whether it changed anything.
func (s *ChannelService) modifyAsAdmin(
	userID chat.UserID,
	channelID chat.ChannelID,
	change func(channel *chat.Channel) (bool, error),
) (chat.Channel, bool, error) {
	var changed bool
	disk, err := s.channels.ModifyChannel(string(channelID), func(disk *repositories.DiskChannel) error {
		channel := toChannel(*disk)
		if channel.Admin != userID {
			return fmt.Errorf("%w: only the admin changes %s", errors.ErrUnauthorized, channelID)
		}
		var err error
		if changed, err = change(&channel); err != nil {
			return err
		}
		*disk = fromChannel(channel)
		return nil
	})
	if errors.Is(err, errors.ErrUnauthorized) {
		s.log.Warn("Channel change by a non admin", "user_id", userID, "channel_id", channelID)
	}
	if err != nil {
		return chat.Channel{}, false, storageError(err)
	}
	return toChannel(disk), changed, nil
}

func (s *ChannelService) load(channelID chat.ChannelID) (chat.Channel, error) {
	disk, err := s.channels.GetChannel(string(channelID))
	if err != nil {
		return chat.Channel{}, storageError(err)
	}
	return toChannel(disk), nil
}

func (s *ChannelService) loadAsAdmin(userID chat.UserID, channelID chat.ChannelID) (chat.Channel, error) {
	channel, err := s.load(channelID)
	if err != nil {
		return chat.Channel{}, err
	}
	if channel.Admin != userID {
		s.log.Warn("Channel change by a non admin", "user_id", userID, "channel_id", channelID)
		return chat.Channel{}, fmt.Errorf("%w: only the admin changes %s", errors.ErrUnauthorized, channelID)
	}
	return channel, nil
}

// syncGroup makes the live connections of the given users join or leave the channel group.
func (s *ChannelService) syncGroup(channelID chat.ChannelID, joined, left []chat.UserID) {
	for _, userID := range joined {
		if sink, ok := s.registry.Lookup(userID); ok {
			s.registry.Join(channelID, sink)
		}
	}
	for _, userID := range left {
		if sink, ok := s.registry.Lookup(userID); ok {
			s.registry.Leave(channelID, sink)
		}
	}
}
