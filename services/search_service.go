package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/search"
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

type ISearchService interface {
	SearchMessages(ctx context.Context, cmd SearchMessagesCommand) ([]search.Hit, error)
}

type IMessageIndex interface {
	Search(ctx context.Context, terms string, scope search.Scope, limit int) ([]search.Hit, error)
}

// SearchMessagesCommand restricts the search to one conversation key when
// Conversation is set ("ch:<channel>" or "dm:<a>:<b>").
type SearchMessagesCommand struct {
	UserID       chat.UserID
	Terms        string
	Conversation string
	Limit        int
}

// SearchService only ever searches what the requester can read: its direct
// conversations and the channels it currently belongs to.
type SearchService struct {
	index      IMessageIndex
	membership contract.IMembershipResolver
}

func NewSearchService(index IMessageIndex, membership contract.IMembershipResolver) *SearchService {
	return &SearchService{index: index, membership: membership}
}

func (s *SearchService) SearchMessages(ctx context.Context, cmd SearchMessagesCommand) ([]search.Hit, error) {
	scope, err := s.scope(ctx, cmd.UserID, cmd.Conversation)
	if err != nil {
		return nil, err
	}
	return s.index.Search(ctx, cmd.Terms, scope, cmd.Limit)
}

func (s *SearchService) scope(ctx context.Context, userID chat.UserID, conversation string) (search.Scope, error) {
	switch {
	case conversation == "":
		channels, err := s.membership.ChannelsOf(ctx, userID)
		if err != nil {
			return search.Scope{}, err
		}
		return search.Scope{
			Participant: userID,
			Conversations: lo.Map(channels, func(channelID chat.ChannelID, _ int) string {
				return chat.ConversationKey(userID, chat.ChannelTarget{Channel: channelID})
			}),
		}, nil
	case strings.HasPrefix(conversation, "ch:"):
		channelID := chat.ChannelID(strings.TrimPrefix(conversation, "ch:"))
		member, err := s.membership.IsMember(ctx, channelID, userID)
		if err != nil {
			return search.Scope{}, err
		}
		if !member {
			return search.Scope{}, fmt.Errorf("%w: not a member of channel %s", errors.ErrUnauthorized, channelID)
		}
	case strings.HasPrefix(conversation, "dm:"):
		ends := strings.Split(strings.TrimPrefix(conversation, "dm:"), ":")
		if len(ends) != 2 || !lo.Contains(ends, string(userID)) {
			return search.Scope{}, fmt.Errorf("%w: not a participant of %s", errors.ErrUnauthorized, conversation)
		}
	default:
		return search.Scope{}, fmt.Errorf("%w: unknown conversation %q", errors.ErrValidation, conversation)
	}
	return search.Scope{Conversations: []string{conversation}}, nil
}
