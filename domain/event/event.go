package event

import (
	"chat-relay/domain/chat"
)

type Type string

const (
	DirectMessageReceivedType  Type = "receive-direct-message"
	ChannelMessageReceivedType Type = "receive-channel-message"
	SendAcknowledgedType       Type = "send-ack"
	SendRejectedType           Type = "send-error"
	ChannelUpdatedType         Type = "channel-updated"
	ChannelDeletedType         Type = "channel-deleted"
)

// DomainEvent is anything the server pushes to a live connection.
type DomainEvent interface {
	Type() Type
}

// DirectMessageReceived is pushed to both the sender and the recipient of a direct message.
type DirectMessageReceived struct {
	Message       chat.Message
	CorrelationID chat.CorrelationID
}

func (DirectMessageReceived) Type() Type { return DirectMessageReceivedType }

// ChannelMessageReceived is pushed to every channel member except the sender.
type ChannelMessageReceived struct {
	Message       chat.Message
	CorrelationID chat.CorrelationID
}

func (ChannelMessageReceived) Type() Type { return ChannelMessageReceivedType }

// SendAcknowledged confirms a send-intent to the originating connection only.
type SendAcknowledged struct {
	CorrelationID chat.CorrelationID
	Message       chat.Message
}

func (SendAcknowledged) Type() Type { return SendAcknowledgedType }

// SendRejected reports a refused send-intent to the originating connection only.
type SendRejected struct {
	CorrelationID chat.CorrelationID
	Err           error
}

func (SendRejected) Type() Type { return SendRejectedType }

type ChannelUpdated struct {
	Channel chat.Channel
}

func (ChannelUpdated) Type() Type { return ChannelUpdatedType }

// ChannelDeleted is pushed to the group of a channel right before the group is dissolved.
type ChannelDeleted struct {
	ChannelID chat.ChannelID
}

func (ChannelDeleted) Type() Type { return ChannelDeletedType }
