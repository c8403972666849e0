package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageGateway turns a validated draft into a durable message.
// Nothing is dispatched before Append returns successfully.
type MessageGateway struct {
	log       *slog.Logger
	messages  repositories.IMessageRepository
	users     repositories.IUserRepository
	channels  repositories.IChannelRepository
	moderator contract.IModerator
	indexed   chan<- chat.Message
	now       func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewMessageGateway accepts a nil moderator (no censorship) and a nil index
// channel (no full-text search).
func NewMessageGateway(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	channels repositories.IChannelRepository,
	moderator contract.IModerator,
	indexed chan<- chat.Message,
) *MessageGateway {
	return &MessageGateway{
		log:       log,
		messages:  messages,
		users:     users,
		channels:  channels,
		moderator: moderator,
		indexed:   indexed,
		now:       time.Now,
		last:      make(map[string]time.Time),
	}
}

// stamp returns the creation time of the next message of a conversation.
// Timestamps have millisecond precision and strictly increase within a conversation,
// so storage order and timestamp order both follow submission order.
func (g *MessageGateway) stamp(conversation string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	at := g.now().UTC().Truncate(time.Millisecond)
	if last, ok := g.last[conversation]; ok && !at.After(last) {
		at = last.Add(time.Millisecond)
	}
	g.last[conversation] = at
	return at
}

// Append validates and stores a draft, returning the canonical message.
// Errors: errors.ErrValidation for a malformed draft, errors.ErrNotFound for an
// unknown recipient or sender, errors.ErrTransientIO when storage is unavailable.
func (g *MessageGateway) Append(ctx context.Context, draft chat.Draft) (chat.Message, error) {
	if err := draft.Validate(); err != nil {
		return chat.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}

	sender, err := g.users.GetUser(string(draft.Sender))
	if err != nil {
		return chat.Message{}, storageError(err)
	}
	if target, ok := draft.Target.(chat.DirectTarget); ok {
		if _, err = g.users.GetUser(string(target.Recipient)); err != nil {
			return chat.Message{}, storageError(err)
		}
	}

	body := draft.Body
	if text, ok := body.(chat.TextBody); ok && g.moderator != nil {
		if censored, words := g.moderator.Censor(text.Content); len(words) > 0 {
			g.log.Info("Message censored", "user_id", draft.Sender, "words", len(words))
			body = chat.TextBody{Content: censored}
		}
	}

	message := chat.Message{
		ID:            uuid.New(),
		Sender:        toUser(sender).Profile(),
		Target:        draft.Target,
		Body:          body,
		CorrelationID: draft.CorrelationID,
	}
	message.CreatedAt = g.stamp(message.Conversation())

	if err = g.messages.StoreMessage(toDiskMessage(message)); err != nil {
		g.log.Error("Message not stored", "user_id", draft.Sender, "error", err)
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}

	if target, ok := message.Target.(chat.ChannelTarget); ok {
		if err = g.channels.TouchChannel(string(target.Channel), preview(message.Body), message.CreatedAt); err != nil {
			g.log.Warn("Channel last activity not updated", "channel_id", target.Channel, "error", err)
		}
	}

	if g.indexed != nil {
		select {
		case g.indexed <- message:
		default:
			g.log.Warn("Search index busy, message not indexed", "message_id", message.ID)
		}
	}
	return message, nil
}

// storageError keeps the domain errors of a repository and reports any other failure as transient.
func storageError(err error) error {
	switch {
	case errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrValidation),
		errors.Is(err, errors.ErrUnauthorized),
		errors.Is(err, errors.ErrUserAlreadyExists):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}
}
