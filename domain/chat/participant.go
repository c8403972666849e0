package chat

import (
	"sort"
	"strings"
	"time"
)

// Profile is the small public view of a user embedded in every message.
type Profile struct {
	ID        UserID
	FirstName string
	LastName  string
	Email     string
	Image     string
	Color     int
}

func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// DirectContact is a user the owner has a direct conversation with, and the last
// message of that conversation.
type DirectContact struct {
	Profile      Profile
	LastMessage  string
	LastSender   UserID
	LastActivity time.Time
}

type User struct {
	ID           UserID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Image        string
	Color        int
	ProfileSetup bool
	CreatedAt    time.Time
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Image:     u.Image,
		Color:     u.Color,
	}
}

type Channel struct {
	ID           ChannelID
	Name         string
	Description  string
	Admin        UserID
	Members      []UserID
	Image        string
	IsPrivate    bool
	LastMessage  string
	LastActivity time.Time
	CreatedAt    time.Time
}

func (c Channel) HasMember(userID UserID) bool {
	for _, member := range c.Members {
		if member == userID {
			return true
		}
	}
	return false
}

// Set is a set of user identities.
type Set map[UserID]struct{}

func NewSet(ids ...UserID) Set {
	set := make(Set, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s Set) Has(id UserID) bool {
	_, ok := s[id]
	return ok
}

// Without returns a copy of the set minus the given identity.
func (s Set) Without(id UserID) Set {
	out := make(Set, len(s))
	for member := range s {
		if member != id {
			out[member] = struct{}{}
		}
	}
	return out
}

// Sorted returns the identities in a deterministic order.
func (s Set) Sorted() []UserID {
	out := make([]UserID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
