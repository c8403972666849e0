package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"
)

type IContactService interface {
	SearchContacts(ctx context.Context, userID chat.UserID, term string) ([]chat.Profile, error)
	GetAllContacts(ctx context.Context, userID chat.UserID) ([]chat.Profile, error)
	GetDirectContacts(ctx context.Context, userID chat.UserID) ([]chat.DirectContact, error)
}

type ContactService struct {
	users    repositories.IUserRepository
	messages repositories.IMessageRepository
}

func NewContactService(users repositories.IUserRepository, messages repositories.IMessageRepository) *ContactService {
	return &ContactService{users: users, messages: messages}
}

// SearchContacts never returns the requester itself. A blank term matches nobody.
func (s *ContactService) SearchContacts(_ context.Context, userID chat.UserID, term string) ([]chat.Profile, error) {
	if strings.TrimSpace(term) == "" {
		return []chat.Profile{}, nil
	}
	users, err := s.users.SearchUsers(term, string(userID))
	if err != nil {
		return nil, storageError(err)
	}
	return lo.Map(users, func(user repositories.User, _ int) chat.Profile {
		return toUser(user).Profile()
	}), nil
}

// GetAllContacts lists every other user, sorted by display name.
func (s *ContactService) GetAllContacts(_ context.Context, userID chat.UserID) ([]chat.Profile, error) {
	users, err := s.users.SearchUsers("", string(userID))
	if err != nil {
		return nil, storageError(err)
	}
	profiles := lo.Map(users, func(user repositories.User, _ int) chat.Profile {
		return toUser(user).Profile()
	})
	sort.SliceStable(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].DisplayName()) < strings.ToLower(profiles[j].DisplayName())
	})
	return profiles, nil
}

// GetDirectContacts lists the users the requester exchanged direct messages with,
// most recent conversation first. Users removed since are skipped.
func (s *ContactService) GetDirectContacts(_ context.Context, userID chat.UserID) ([]chat.DirectContact, error) {
	summaries, err := s.messages.GetContacts(string(userID))
	if err != nil {
		return nil, storageError(err)
	}
	contacts := make([]chat.DirectContact, 0, len(summaries))
	for _, summary := range summaries {
		user, err := s.users.GetUser(summary.Peer)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		contacts = append(contacts, chat.DirectContact{
			Profile:      toUser(user).Profile(),
			LastMessage:  summary.LastMessage,
			LastSender:   chat.UserID(summary.LastSender),
			LastActivity: summary.LastActivity,
		})
	}
	return contacts, nil
}
