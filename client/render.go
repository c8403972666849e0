package client

import (
	"chat-relay/domain/chat"
	"chat-relay/projection"
	"fmt"

	"github.com/gookit/color"
)

// palette follows the profile colour picked at registration.
var palette = []color.Color{color.FgCyan, color.FgMagenta, color.FgYellow, color.FgGreen}

// Render turns the items of a conversation into printable lines.
// Pending and failed entries are flagged, colours are skipped when plain is set.
func Render(items []projection.Item, plain bool) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item.Kind == projection.DateSeparator {
			lines = append(lines, fmt.Sprintf("--- %s ---", item.Day.Format("Monday 02 January 2006")))
			continue
		}
		message := item.Entry.Message
		sender := message.Sender.DisplayName()
		if !plain {
			sender = paint(message.Sender.Color, sender)
		}
		line := fmt.Sprintf("[%s] %s: %s", message.CreatedAt.In(item.Day.Location()).Format("15:04"), sender, describe(message.Body))
		switch item.Entry.State {
		case projection.Pending:
			line += " (sending)"
		case projection.Failed:
			line += " (not sent)"
			if !plain {
				line = color.FgRed.Render(line)
			}
		}
		lines = append(lines, line)
	}
	return lines
}

func paint(profileColor int, text string) string {
	if profileColor < 0 || profileColor >= len(palette) {
		return text
	}
	return palette[profileColor].Render(text)
}

func describe(body chat.Body) string {
	switch b := body.(type) {
	case chat.TextBody:
		return b.Content
	case chat.FileBody:
		return fmt.Sprintf("[file] %s (%d bytes) %s", b.Name, b.Size, b.URL)
	default:
		return ""
	}
}
