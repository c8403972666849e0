package client

import (
	"chat-relay/domain/chat"
	"chat-relay/projection"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRender_Plain(t *testing.T) {
	req := require.New(t)
	conversation := projection.NewConversation(nil)
	alice := chat.Profile{ID: "alice", FirstName: "Alice"}
	day := time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

	// Given a confirmed file, then a pending message the next day
	conversation.Confirm(chat.Message{
		ID: uuid.New(), Sender: alice, Target: chat.DirectTarget{Recipient: "bob"},
		Body: chat.FileBody{URL: "files/1/plan.pdf", Name: "plan.pdf", Size: 42}, CreatedAt: day,
	})
	conversation.AddOptimistic(chat.Message{
		Sender: alice, Target: chat.DirectTarget{Recipient: "bob"},
		Body: chat.TextBody{Content: "see attached"}, CreatedAt: day.Add(24 * time.Hour),
	}, "c-1")

	lines := Render(conversation.Items(), true)

	req.Equal([]string{
		"--- Friday 01 March 2024 ---",
		"[09:30] Alice: [file] plan.pdf (42 bytes) files/1/plan.pdf",
		"--- Saturday 02 March 2024 ---",
		"[09:30] Alice: see attached (sending)",
	}, lines)
}
