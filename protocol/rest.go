package protocol

import (
	"chat-relay/domain/chat"
	"time"
)

// Bodies of the REST API. Errors are answered with an ErrorPayload.

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Color     int    `json:"color"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionDTO struct {
	Token string     `json:"token"`
	User  ProfileDTO `json:"user"`
}

type HistoryDTO struct {
	Messages []MessageDTO `json:"messages"`
	Cursor   *string      `json:"cursor,omitempty"`
}

type MemberRequest struct {
	UserID string `json:"userId"`
}

type FileRefDTO struct {
	FileRef FileDTO `json:"fileRef"`
}

type SearchHitDTO struct {
	MessageID    string    `json:"messageId"`
	Conversation string    `json:"conversation"`
	Sender       string    `json:"sender"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Score        float64   `json:"score"`
}

// DirectContactDTO is an entry of the direct message list.
type DirectContactDTO struct {
	Contact         ProfileDTO `json:"contact"`
	LastMessage     string     `json:"lastMessage,omitempty"`
	LastSender      string     `json:"lastSender"`
	LastMessageTime time.Time  `json:"lastMessageTime"`
}

func FromDirectContact(contact chat.DirectContact) DirectContactDTO {
	return DirectContactDTO{
		Contact:         FromProfile(contact.Profile),
		LastMessage:     contact.LastMessage,
		LastSender:      string(contact.LastSender),
		LastMessageTime: contact.LastActivity,
	}
}

func (d DirectContactDTO) ToDirectContact() chat.DirectContact {
	return chat.DirectContact{
		Profile:      d.Contact.ToProfile(),
		LastMessage:  d.LastMessage,
		LastSender:   chat.UserID(d.LastSender),
		LastActivity: d.LastMessageTime.UTC(),
	}
}
