// Package protocol is the JSON wire format shared by the WebSocket server and the Go client.
// Every frame is an Envelope whose payload depends on its type.
package protocol

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Client to server frame types. Server to client types are event.Type values.
const (
	SendDirectMessageType  = "send-direct-message"
	SendChannelMessageType = "send-channel-message"
	JoinChannelType        = "join-channel"
	LeaveChannelType       = "leave-channel"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type FileDTO struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// SendMessagePayload is the payload of both send-intents.
// Recipient is set for a direct message, ChannelID for a channel message.
type SendMessagePayload struct {
	Sender        string   `json:"sender,omitempty"`
	Recipient     string   `json:"recipient,omitempty"`
	ChannelID     string   `json:"channelId,omitempty"`
	Kind          string   `json:"kind"`
	Content       string   `json:"content,omitempty"`
	File          *FileDTO `json:"file,omitempty"`
	CorrelationID string   `json:"correlationId"`
}

type ChannelPayload struct {
	ChannelID string `json:"channelId"`
}

type ProfileDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Image     string `json:"image,omitempty"`
	Color     int    `json:"color"`
}

type MessageDTO struct {
	ID            string     `json:"id"`
	Sender        ProfileDTO `json:"sender"`
	Recipient     string     `json:"recipient,omitempty"`
	ChannelID     string     `json:"channelId,omitempty"`
	Kind          string     `json:"kind"`
	Content       string     `json:"content,omitempty"`
	File          *FileDTO   `json:"file,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

type ChannelDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Admin        string    `json:"admin"`
	Members      []string  `json:"members"`
	Image        string    `json:"image,omitempty"`
	IsPrivate    bool      `json:"isPrivate"`
	LastMessage  string    `json:"lastMessage,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ReceivePayload struct {
	Message       MessageDTO `json:"message"`
	CorrelationID string     `json:"correlationId,omitempty"`
}

type AckPayload struct {
	CorrelationID string     `json:"correlationId"`
	Message       MessageDTO `json:"message"`
}

type ErrorPayload struct {
	CorrelationID string `json:"correlationId,omitempty"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Retryable     bool   `json:"retryable"`
}

type ChannelUpdatedPayload struct {
	Channel ChannelDTO `json:"channel"`
}

// RemoteError is a send-error as seen by the client.
type RemoteError struct {
	Code      errors.Code
	Message   string
	Retryable bool
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Body builds the tagged body of a send-intent.
func (p SendMessagePayload) Body() (chat.Body, error) {
	switch chat.Kind(p.Kind) {
	case chat.KindText:
		return chat.TextBody{Content: p.Content}, nil
	case chat.KindFile:
		if p.File == nil {
			return nil, fmt.Errorf("%w: file message without file", errors.ErrValidation)
		}
		return chat.FileBody{URL: p.File.URL, Name: p.File.Name, Size: p.File.Size}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message kind %q", errors.ErrValidation, p.Kind)
	}
}

// WithBody fills the kind and content fields of a send-intent.
func (p SendMessagePayload) WithBody(body chat.Body) SendMessagePayload {
	p.Kind = string(body.Kind())
	switch b := body.(type) {
	case chat.TextBody:
		p.Content = b.Content
	case chat.FileBody:
		p.File = &FileDTO{URL: b.URL, Name: b.Name, Size: b.Size}
	}
	return p
}

func FromProfile(profile chat.Profile) ProfileDTO {
	return ProfileDTO{
		ID:        string(profile.ID),
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Email:     profile.Email,
		Image:     profile.Image,
		Color:     profile.Color,
	}
}

func (p ProfileDTO) ToProfile() chat.Profile {
	return chat.Profile{
		ID:        chat.UserID(p.ID),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Image:     p.Image,
		Color:     p.Color,
	}
}

func FromMessage(message chat.Message) MessageDTO {
	dto := MessageDTO{
		ID:            message.ID.String(),
		Sender:        FromProfile(message.Sender),
		CorrelationID: string(message.CorrelationID),
		Timestamp:     message.CreatedAt,
	}
	switch target := message.Target.(type) {
	case chat.DirectTarget:
		dto.Recipient = string(target.Recipient)
	case chat.ChannelTarget:
		dto.ChannelID = string(target.Channel)
	}
	if message.Body != nil {
		dto.Kind = string(message.Body.Kind())
	}
	switch body := message.Body.(type) {
	case chat.TextBody:
		dto.Content = body.Content
	case chat.FileBody:
		dto.File = &FileDTO{URL: body.URL, Name: body.Name, Size: body.Size}
	}
	return dto
}

func (m MessageDTO) ToMessage() (chat.Message, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: message id: %v", errors.ErrInvalidFrame, err)
	}
	body, err := SendMessagePayload{Kind: m.Kind, Content: m.Content, File: m.File}.Body()
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	message := chat.Message{
		ID:            id,
		Sender:        m.Sender.ToProfile(),
		Body:          body,
		CorrelationID: chat.CorrelationID(m.CorrelationID),
		CreatedAt:     m.Timestamp,
	}
	switch {
	case m.ChannelID != "":
		message.Target = chat.ChannelTarget{Channel: chat.ChannelID(m.ChannelID)}
	case m.Recipient != "":
		message.Target = chat.DirectTarget{Recipient: chat.UserID(m.Recipient)}
	default:
		return chat.Message{}, fmt.Errorf("%w: message without target", errors.ErrInvalidFrame)
	}
	return message, nil
}

func FromChannel(channel chat.Channel) ChannelDTO {
	return ChannelDTO{
		ID:          string(channel.ID),
		Name:        channel.Name,
		Description: channel.Description,
		Admin:       string(channel.Admin),
		Members: lo.Map(channel.Members, func(member chat.UserID, _ int) string {
			return string(member)
		}),
		Image:        channel.Image,
		IsPrivate:    channel.IsPrivate,
		LastMessage:  channel.LastMessage,
		LastActivity: channel.LastActivity,
		CreatedAt:    channel.CreatedAt,
	}
}

func (c ChannelDTO) ToChannel() chat.Channel {
	return chat.Channel{
		ID:          chat.ChannelID(c.ID),
		Name:        c.Name,
		Description: c.Description,
		Admin:       chat.UserID(c.Admin),
		Members: lo.Map(c.Members, func(member string, _ int) chat.UserID {
			return chat.UserID(member)
		}),
		Image:        c.Image,
		IsPrivate:    c.IsPrivate,
		LastMessage:  c.LastMessage,
		LastActivity: c.LastActivity,
		CreatedAt:    c.CreatedAt,
	}
}

// NewErrorPayload describes an error without leaking internal details.
func NewErrorPayload(correlationID chat.CorrelationID, err error) ErrorPayload {
	code := errors.CodeOf(err)
	message := err.Error()
	if code == errors.CodeInternal {
		message = "internal error"
	}
	return ErrorPayload{
		CorrelationID: string(correlationID),
		Code:          string(code),
		Message:       message,
		Retryable:     errors.IsRetryable(err),
	}
}

// Encode turns an event pushed by the server into a frame.
func Encode(e event.DomainEvent) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case event.DirectMessageReceived:
		payload = ReceivePayload{Message: FromMessage(evt.Message), CorrelationID: string(evt.CorrelationID)}
	case event.ChannelMessageReceived:
		payload = ReceivePayload{Message: FromMessage(evt.Message), CorrelationID: string(evt.CorrelationID)}
	case event.SendAcknowledged:
		payload = AckPayload{CorrelationID: string(evt.CorrelationID), Message: FromMessage(evt.Message)}
	case event.SendRejected:
		payload = NewErrorPayload(evt.CorrelationID, evt.Err)
	case event.ChannelUpdated:
		payload = ChannelUpdatedPayload{Channel: FromChannel(evt.Channel)}
	case event.ChannelDeleted:
		payload = ChannelPayload{ChannelID: string(evt.ChannelID)}
	default:
		return nil, fmt.Errorf("%w: %T", errors.ErrUnknownEvent, e)
	}
	return Frame(string(e.Type()), payload)
}

// Frame marshals a payload inside an envelope of the given type.
func Frame(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: frameType, Payload: raw})
}

func Decode(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	if envelope.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", errors.ErrInvalidFrame)
	}
	return envelope, nil
}

// Payload unmarshals the payload of an envelope.
func Payload[T any](envelope Envelope) (T, error) {
	var payload T
	if len(envelope.Payload) == 0 {
		return payload, fmt.Errorf("%w: %s without payload", errors.ErrInvalidFrame, envelope.Type)
	}
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", errors.ErrInvalidFrame, envelope.Type, err)
	}
	return payload, nil
}

// DecodeEvent turns a frame pushed by the server back into an event.
// A send-error carries a RemoteError.
func DecodeEvent(envelope Envelope) (event.DomainEvent, error) {
	switch event.Type(envelope.Type) {
	case event.DirectMessageReceivedType, event.ChannelMessageReceivedType:
		payload, err := Payload[ReceivePayload](envelope)
		if err != nil {
			return nil, err
		}
		message, err := payload.Message.ToMessage()
		if err != nil {
			return nil, err
		}
		if event.Type(envelope.Type) == event.DirectMessageReceivedType {
			return event.DirectMessageReceived{Message: message, CorrelationID: chat.CorrelationID(payload.CorrelationID)}, nil
		}
		return event.ChannelMessageReceived{Message: message, CorrelationID: chat.CorrelationID(payload.CorrelationID)}, nil
	case event.SendAcknowledgedType:
		payload, err := Payload[AckPayload](envelope)
		if err != nil {
			return nil, err
		}
		message, err := payload.Message.ToMessage()
		if err != nil {
			return nil, err
		}
		return event.SendAcknowledged{CorrelationID: chat.CorrelationID(payload.CorrelationID), Message: message}, nil
	case event.SendRejectedType:
		payload, err := Payload[ErrorPayload](envelope)
		if err != nil {
			return nil, err
		}
		return event.SendRejected{
			CorrelationID: chat.CorrelationID(payload.CorrelationID),
			Err:           RemoteError{Code: errors.Code(payload.Code), Message: payload.Message, Retryable: payload.Retryable},
		}, nil
	case event.ChannelUpdatedType:
		payload, err := Payload[ChannelUpdatedPayload](envelope)
		if err != nil {
			return nil, err
		}
		return event.ChannelUpdated{Channel: payload.Channel.ToChannel()}, nil
	case event.ChannelDeletedType:
		payload, err := Payload[ChannelPayload](envelope)
		if err != nil {
			return nil, err
		}
		return event.ChannelDeleted{ChannelID: chat.ChannelID(payload.ChannelID)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownEvent, envelope.Type)
	}
}
