// Package chat contains core concepts of the chat system.
// This file defines Message drafts and persisted messages.
// The body and the target of a message are tagged variants so a message can
// never be addressed to both a user and a channel, or to neither.
package chat

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type (
	UserID        string
	ChannelID     string
	CorrelationID string
)

type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Body is either a TextBody or a FileBody.
type Body interface {
	Kind() Kind
	isBody()
}

type TextBody struct {
	Content string `validate:"required,max=4000"`
}

func (TextBody) Kind() Kind { return KindText }
func (TextBody) isBody() {}

// FileBody references a binary stored by the file collaborator.
type FileBody struct {
	URL  string `validate:"required,max=1024"`
	Name string `validate:"required,max=255"`
	Size int64  `validate:"gte=0"`
}

func (FileBody) Kind() Kind { return KindFile }
func (FileBody) isBody() {}

// Target is either a DirectTarget or a ChannelTarget.
type Target interface {
	isTarget()
}

type DirectTarget struct {
	Recipient UserID `validate:"required"`
}

func (DirectTarget) isTarget() {}

type ChannelTarget struct {
	Channel ChannelID `validate:"required"`
}

func (ChannelTarget) isTarget() {}

// Draft is a message which has not been persisted yet.
type Draft struct {
	Sender        UserID        `validate:"required"`
	Target        Target        `validate:"required"`
	Body          Body          `validate:"required"`
	CorrelationID CorrelationID `validate:"max=128"`
}

// Validate checks the required fields of the draft according to its kind.
func (d Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if err := validate.Struct(d.Target); err != nil {
		return fmt.Errorf("%w: target: %v", errors.ErrValidation, err)
	}
	if err := validate.Struct(d.Body); err != nil {
		return fmt.Errorf("%w: %s body: %v", errors.ErrValidation, d.Body.Kind(), err)
	}
	switch body := d.Body.(type) {
	case TextBody:
		if strings.TrimSpace(body.Content) == "" {
			return fmt.Errorf("%w: text content is blank", errors.ErrValidation)
		}
	case FileBody:
		if strings.TrimSpace(body.URL) == "" || strings.TrimSpace(body.Name) == "" {
			return fmt.Errorf("%w: file reference is incomplete", errors.ErrValidation)
		}
	}
	return nil
}

// Message is the canonical stored form of a message.
type Message struct {
	ID            uuid.UUID
	Sender        Profile
	Target        Target
	Body          Body
	CorrelationID CorrelationID
	CreatedAt     time.Time
}

// Conversation returns the key shared by every message of the same conversation.
func (m Message) Conversation() string {
	return ConversationKey(m.Sender.ID, m.Target)
}

// ConversationKey is "ch:<channel>" for a channel and "dm:<a>:<b>" for a direct
// conversation, a and b being sorted so both directions share the same key.
func ConversationKey(sender UserID, target Target) string {
	switch t := target.(type) {
	case ChannelTarget:
		return "ch:" + string(t.Channel)
	case DirectTarget:
		a, b := sender, t.Recipient
		if b < a {
			a, b = b, a
		}
		return fmt.Sprintf("dm:%s:%s", a, b)
	default:
		return ""
	}
}
