package chat

// SendDirectMessageCommand is the send-intent of a direct message.
// ClaimedSender is the sender announced by the client, it must match Sender
// (the authenticated identity of the connection) when present.
type SendDirectMessageCommand struct {
	Sender        UserID
	ClaimedSender UserID
	Recipient     UserID
	Body          Body
	CorrelationID CorrelationID
}

func (c SendDirectMessageCommand) Draft() Draft {
	return Draft{
		Sender:        c.Sender,
		Target:        DirectTarget{Recipient: c.Recipient},
		Body:          c.Body,
		CorrelationID: c.CorrelationID,
	}
}

type SendChannelMessageCommand struct {
	Sender        UserID
	ClaimedSender UserID
	Channel       ChannelID
	Body          Body
	CorrelationID CorrelationID
}

func (c SendChannelMessageCommand) Draft() Draft {
	return Draft{
		Sender:        c.Sender,
		Target:        ChannelTarget{Channel: c.Channel},
		Body:          c.Body,
		CorrelationID: c.CorrelationID,
	}
}

type GetDirectMessagesCommand struct {
	UserID  UserID
	Contact UserID
	Cursor  *string
}

type GetChannelMessagesCommand struct {
	UserID  UserID
	Channel ChannelID
	Cursor  *string
}
