package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"fmt"
	"log/slog"
)

type IChatService interface {
	Connect(ctx context.Context, userID chat.UserID, sink contract.EventSink) error
	Disconnect(sink contract.EventSink)
	SendDirectMessage(ctx context.Context, origin contract.EventSink, cmd chat.SendDirectMessageCommand) (chat.Message, error)
	SendChannelMessage(ctx context.Context, origin contract.EventSink, cmd chat.SendChannelMessageCommand) (chat.Message, error)
	JoinChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, sink contract.EventSink) error
	LeaveChannel(channelID chat.ChannelID, sink contract.EventSink)
	GetDirectMessages(ctx context.Context, cmd chat.GetDirectMessagesCommand) ([]chat.Message, *string, error)
	GetChannelMessages(ctx context.Context, cmd chat.GetChannelMessagesCommand) ([]chat.Message, *string, error)
	Online() int
}

// ChatService drives a send-intent from its live connection to the audience:
// authorization, persistence, audience resolution, then fan-out.
type ChatService struct {
	log        *slog.Logger
	registry   contract.IRegistry
	membership contract.IMembershipResolver
	gateway    contract.IMessageGateway
	dispatcher contract.IDispatcher
	messages   repositories.IMessageRepository
	users      repositories.IUserRepository
}

func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	membership contract.IMembershipResolver,
	gateway contract.IMessageGateway,
	dispatcher contract.IDispatcher,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
) *ChatService {
	return &ChatService{
		log:        log,
		registry:   registry,
		membership: membership,
		gateway:    gateway,
		dispatcher: dispatcher,
		messages:   messages,
		users:      users,
	}
}

// Connect registers the connection of an authenticated user and joins it to the
// groups of the channels the user belongs to at this moment.
func (s *ChatService) Connect(ctx context.Context, userID chat.UserID, sink contract.EventSink) error {
	channels, err := s.membership.ChannelsOf(ctx, userID)
	if err != nil {
		return err
	}
	s.registry.Register(userID, sink)
	for _, channelID := range channels {
		s.registry.Join(channelID, sink)
	}
	s.log.Debug("User connected", "user_id", userID, "channels", len(channels), "online", s.registry.Online())
	return nil
}

func (s *ChatService) Disconnect(sink contract.EventSink) {
	if userID, ok := s.registry.Unregister(sink); ok {
		s.log.Debug("User disconnected", "user_id", userID, "online", s.registry.Online())
	}
}

// SendDirectMessage persists the message then pushes it to both ends of the conversation.
// The originating connection is told the outcome with send-ack or send-error.
func (s *ChatService) SendDirectMessage(ctx context.Context, origin contract.EventSink, cmd chat.SendDirectMessageCommand) (chat.Message, error) {
	if err := s.checkIntent(cmd.Sender, cmd.ClaimedSender, cmd.CorrelationID); err != nil {
		return chat.Message{}, s.reject(ctx, origin, cmd.CorrelationID, err)
	}

	message, err := s.gateway.Append(ctx, cmd.Draft())
	if err != nil {
		return chat.Message{}, s.reject(ctx, origin, cmd.CorrelationID, err)
	}

	s.dispatcher.Dispatch(ctx, message, runtime.Audience(message, nil))
	s.acknowledge(ctx, origin, message)
	return message, nil
}

// SendChannelMessage checks the sender still belongs to the channel, persists the
// message then pushes it to every other member.
func (s *ChatService) SendChannelMessage(ctx context.Context, origin contract.EventSink, cmd chat.SendChannelMessageCommand) (chat.Message, error) {
	if err := s.checkIntent(cmd.Sender, cmd.ClaimedSender, cmd.CorrelationID); err != nil {
		return chat.Message{}, s.reject(ctx, origin, cmd.CorrelationID, err)
	}

	member, err := s.membership.IsMember(ctx, cmd.Channel, cmd.Sender)
	if err != nil {
		return chat.Message{}, s.reject(ctx, origin, cmd.CorrelationID, err)
	}
	if !member {
		s.log.Warn("Send to a channel by a non member", "user_id", cmd.Sender, "channel_id", cmd.Channel)
		err = fmt.Errorf("%w: %s is not a member of %s", errors.ErrUnauthorized, cmd.Sender, cmd.Channel)
		return chat.Message{}, s.reject(ctx, origin, cmd.CorrelationID, err)
	}

	message, err := s.gateway.Append(ctx, cmd.Draft())
	if err != nil {
		return chat.Message{}, s.reject(ctx, origin, cmd.CorrelationID, err)
	}

	// The audience is resolved at dispatch time
	members, err := s.membership.MembersOf(ctx, cmd.Channel)
	if err != nil {
		s.log.Warn("Audience not resolved, message stored but not pushed", "channel_id", cmd.Channel, "error", err)
		s.acknowledge(ctx, origin, message)
		return message, nil
	}
	s.dispatcher.Dispatch(ctx, message, runtime.Audience(message, members))
	s.acknowledge(ctx, origin, message)
	return message, nil
}

func (s *ChatService) checkIntent(sender, claimed chat.UserID, correlationID chat.CorrelationID) error {
	if claimed != "" && claimed != sender {
		s.log.Warn("Sender does not match the connection identity", "user_id", sender, "claimed", claimed)
		return fmt.Errorf("%w: sender %s is not the connected user", errors.ErrUnauthorized, claimed)
	}
	if correlationID == "" {
		return fmt.Errorf("%w: correlation id is required", errors.ErrValidation)
	}
	return nil
}

func (s *ChatService) reject(ctx context.Context, origin contract.EventSink, correlationID chat.CorrelationID, err error) error {
	s.log.Debug("Send rejected", "correlation_id", correlationID, "error", err)
	if origin != nil {
		if consumeErr := origin.Consume(ctx, event.SendRejected{CorrelationID: correlationID, Err: err}); consumeErr != nil {
			s.log.Debug("Rejection not delivered", "correlation_id", correlationID, "error", consumeErr)
		}
	}
	return err
}

func (s *ChatService) acknowledge(ctx context.Context, origin contract.EventSink, message chat.Message) {
	if origin == nil {
		return
	}
	if err := origin.Consume(ctx, event.SendAcknowledged{CorrelationID: message.CorrelationID, Message: message}); err != nil {
		s.log.Debug("Acknowledgement not delivered", "correlation_id", message.CorrelationID, "error", err)
	}
}

// JoinChannel adds the connection to the channel group once membership is confirmed.
func (s *ChatService) JoinChannel(ctx context.Context, userID chat.UserID, channelID chat.ChannelID, sink contract.EventSink) error {
	member, err := s.membership.IsMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if !member {
		s.log.Warn("Join of a channel by a non member", "user_id", userID, "channel_id", channelID)
		return fmt.Errorf("%w: %s is not a member of %s", errors.ErrUnauthorized, userID, channelID)
	}
	s.registry.Join(channelID, sink)
	return nil
}

// LeaveChannel is unconditional and idempotent.
func (s *ChatService) LeaveChannel(channelID chat.ChannelID, sink contract.EventSink) {
	s.registry.Leave(channelID, sink)
}

// GetDirectMessages returns the conversation between the user and a contact, both directions.
func (s *ChatService) GetDirectMessages(ctx context.Context, cmd chat.GetDirectMessagesCommand) ([]chat.Message, *string, error) {
	if _, err := s.users.GetUser(string(cmd.Contact)); err != nil {
		return nil, nil, storageError(err)
	}
	conversation := chat.ConversationKey(cmd.UserID, chat.DirectTarget{Recipient: cmd.Contact})
	return s.history(ctx, conversation, cmd.Cursor)
}

// GetChannelMessages is restricted to the members of the channel.
func (s *ChatService) GetChannelMessages(ctx context.Context, cmd chat.GetChannelMessagesCommand) ([]chat.Message, *string, error) {
	member, err := s.membership.IsMember(ctx, cmd.Channel, cmd.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !member {
		return nil, nil, fmt.Errorf("%w: %s is not a member of %s", errors.ErrUnauthorized, cmd.UserID, cmd.Channel)
	}
	conversation := chat.ConversationKey(cmd.UserID, chat.ChannelTarget{Channel: cmd.Channel})
	return s.history(ctx, conversation, cmd.Cursor)
}

func (s *ChatService) history(_ context.Context, conversation string, cursor *string) ([]chat.Message, *string, error) {
	disks, next, err := s.messages.GetMessages(conversation, cursor)
	if err != nil {
		return nil, nil, storageError(err)
	}

	profiles := make(map[string]chat.Profile)
	messages := make([]chat.Message, 0, len(disks))
	for _, disk := range disks {
		profile, ok := profiles[disk.Sender]
		if !ok {
			user, err := s.users.GetUser(disk.Sender)
			switch {
			case err == nil:
				profile = toUser(user).Profile()
			case errors.Is(err, errors.ErrNotFound):
				// Deleted account, keep the message
				profile = chat.Profile{ID: chat.UserID(disk.Sender)}
			default:
				return nil, nil, storageError(err)
			}
			profiles[disk.Sender] = profile
		}
		messages = append(messages, toMessage(disk, profile))
	}
	return messages, next, nil
}

func (s *ChatService) Online() int {
	return s.registry.Online()
}
