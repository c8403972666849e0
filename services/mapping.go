package services

import (
	"chat-relay/domain/chat"
	"chat-relay/repositories"

	"github.com/samber/lo"
)

func toDiskMessage(message chat.Message) repositories.DiskMessage {
	disk := repositories.DiskMessage{
		ID:            message.ID,
		Conversation:  message.Conversation(),
		Sender:        string(message.Sender.ID),
		MessageType:   string(message.Body.Kind()),
		CorrelationID: string(message.CorrelationID),
		At:            message.CreatedAt,
	}
	switch target := message.Target.(type) {
	case chat.DirectTarget:
		disk.Recipient = lo.ToPtr(string(target.Recipient))
	case chat.ChannelTarget:
		disk.Channel = lo.ToPtr(string(target.Channel))
	}
	switch body := message.Body.(type) {
	case chat.TextBody:
		disk.Content = body.Content
	case chat.FileBody:
		disk.FileURL = body.URL
		disk.FileName = body.Name
		disk.FileSize = body.Size
	}
	return disk
}

func toMessage(disk repositories.DiskMessage, sender chat.Profile) chat.Message {
	message := chat.Message{
		ID:            disk.ID,
		Sender:        sender,
		CorrelationID: chat.CorrelationID(disk.CorrelationID),
		CreatedAt:     disk.At,
	}
	if disk.Channel != nil {
		message.Target = chat.ChannelTarget{Channel: chat.ChannelID(*disk.Channel)}
	} else {
		message.Target = chat.DirectTarget{Recipient: chat.UserID(lo.FromPtr(disk.Recipient))}
	}
	if chat.Kind(disk.MessageType) == chat.KindFile {
		message.Body = chat.FileBody{URL: disk.FileURL, Name: disk.FileName, Size: disk.FileSize}
	} else {
		message.Body = chat.TextBody{Content: disk.Content}
	}
	return message
}

func toUser(user repositories.User) chat.User {
	return chat.User{
		ID:           chat.UserID(user.ID),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Image:        user.Image,
		Color:        user.Color,
		ProfileSetup: user.ProfileSetup,
		CreatedAt:    user.CreatedAt,
	}
}

func toChannel(disk repositories.DiskChannel) chat.Channel {
	return chat.Channel{
		ID:          chat.ChannelID(disk.ID),
		Name:        disk.Name,
		Description: disk.Description,
		Admin:       chat.UserID(disk.Admin),
		Members: lo.Map(disk.Members, func(member string, _ int) chat.UserID {
			return chat.UserID(member)
		}),
		Image:        disk.Image,
		IsPrivate:    disk.IsPrivate,
		LastMessage:  disk.LastMessage,
		LastActivity: disk.LastActivity,
		CreatedAt:    disk.CreatedAt,
	}
}

func fromChannel(channel chat.Channel) repositories.DiskChannel {
	return repositories.DiskChannel{
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

// preview is the text kept as the last message of a channel.
func preview(body chat.Body) string {
	switch b := body.(type) {
	case chat.TextBody:
		return b.Content
	case chat.FileBody:
		return b.Name
	default:
		return ""
	}
}
