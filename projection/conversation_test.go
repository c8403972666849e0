package projection

import (
	"chat-relay/domain/chat"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func textMessage(sender chat.UserID, content string, at time.Time) chat.Message {
	return chat.Message{
		ID:        uuid.New(),
		Sender:    chat.Profile{ID: sender},
		Target:    chat.ChannelTarget{Channel: "general"},
		Body:      chat.TextBody{Content: content},
		CreatedAt: at,
	}
}

func optimistic(sender chat.UserID, content string, at time.Time) chat.Message {
	message := textMessage(sender, content, at)
	message.ID = uuid.Nil
	return message
}

func contents(entries []Entry) []string {
	return lo.Map(entries, func(entry Entry, _ int) string {
		return entry.Message.Body.(chat.TextBody).Content
	})
}

func TestConversation_Confirm_Replaces_Optimistic_In_Place(t *testing.T) {
	req := require.New(t)
	conversation := NewConversation(nil)

	// Given a settled message, an optimistic one, then a message from bob
	conversation.Confirm(textMessage("bob", "before", t0))
	conversation.AddOptimistic(optimistic("alice", "mine", t0.Add(time.Second)), "x")
	conversation.Confirm(textMessage("bob", "after", t0.Add(2*time.Second)))

	// When the confirmation arrives with a later server timestamp
	confirmed := textMessage("alice", "mine", t0.Add(5*time.Second))
	confirmed.CorrelationID = "x"
	replaced := conversation.Confirm(confirmed)

	// Then the list holds one entry for it, at the optimistic position, no longer pending
	req.True(replaced)
	entries := conversation.Entries()
	req.Equal([]string{"before", "mine", "after"}, contents(entries))
	req.Equal(Confirmed, entries[1].State)
	req.Equal(confirmed.ID, entries[1].Message.ID)
	req.Equal("x", entries[1].OptimisticID)
	req.Equal(uint64(2), entries[1].Seq)
}

func TestConversation_Confirm_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	conversation := NewConversation(nil)
	confirmed := textMessage("alice", "hello", t0)
	confirmed.CorrelationID = "x"

	// Given the confirmation arrives before the optimistic copy, and twice
	conversation.Confirm(confirmed)
	conversation.AddOptimistic(optimistic("alice", "hello", t0), "x")
	conversation.Confirm(confirmed)

	req.Equal(1, conversation.Len())
	req.Equal(Confirmed, conversation.Entries()[0].State)
}

func TestConversation_Heuristic_Match(t *testing.T) {
	req := require.New(t)
	conversation := NewConversation(nil)
	conversation.AddOptimistic(optimistic("alice", "hi", t0), "x")

	// An echo without correlation id, too late to be the same message
	conversation.Confirm(textMessage("alice", "hi", t0.Add(3*time.Second)))
	req.Equal(2, conversation.Len())

	// An echo within the window from the same sender
	req.True(conversation.Confirm(textMessage("alice", "hi", t0.Add(time.Second))))
	req.Equal(2, conversation.Len())
	req.Equal([]State{Confirmed, Confirmed}, lo.Map(conversation.Entries(), func(e Entry, _ int) State { return e.State }))
}

func TestConversation_Heuristic_Not_Used_With_Correlation(t *testing.T) {
	req := require.New(t)
	conversation := NewConversation(nil)
	conversation.AddOptimistic(optimistic("alice", "hi", t0), "x")

	// Given an echo carrying another correlation id
	other := textMessage("alice", "hi", t0)
	other.CorrelationID = "y"

	req.False(conversation.Confirm(other))
	req.Equal(2, conversation.Len())
	req.Equal(Pending, conversation.Entries()[0].State)
}

func TestConversation_Failures(t *testing.T) {
	req := require.New(t)
	conversation := NewConversation(nil)
	conversation.AddOptimistic(optimistic("alice", "one", t0), "a")
	conversation.AddOptimistic(optimistic("alice", "two", t0.Add(10*time.Second)), "b")

	// A rejected send is marked failed once
	req.True(conversation.MarkFailed("a"))
	req.False(conversation.MarkFailed("a"))
	req.False(conversation.MarkFailed("unknown"))

	// Only the entries older than the timeout expire
	req.Empty(conversation.ExpirePending(t0.Add(20*time.Second), 15*time.Second))
	req.Equal([]string{"b"}, conversation.ExpirePending(t0.Add(25*time.Second), 15*time.Second))

	// A late confirmation still wins over a failed entry
	late := textMessage("alice", "two", t0.Add(30*time.Second))
	late.CorrelationID = "b"
	req.True(conversation.Confirm(late))
	req.Equal([]State{Failed, Confirmed}, lo.Map(conversation.Entries(), func(e Entry, _ int) State { return e.State }))
}

func TestConversation_Items_Date_Separators(t *testing.T) {
	req := require.New(t)
	late := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	early := time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC)

	utc := NewConversation(nil)
	utc.Confirm(textMessage("alice", "late", late))
	utc.Confirm(textMessage("bob", "early", early))
	utc.Confirm(textMessage("bob", "later", early.Add(time.Hour)))

	items := utc.Items()
	req.Equal([]ItemKind{DateSeparator, MessageItem, DateSeparator, MessageItem, MessageItem},
		lo.Map(items, func(item Item, _ int) ItemKind { return item.Kind }))
	req.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), items[2].Day)

	// Both messages fall on the same day two hours east of UTC
	paris := NewConversation(time.FixedZone("UTC+2", 2*60*60))
	paris.Confirm(textMessage("alice", "late", late))
	paris.Confirm(textMessage("bob", "early", early))
	req.Len(paris.Items(), 3)
}

// Feeding any mix of optimistic copies and repeated confirmations, in any order,
// leaves exactly one entry per message.
func TestConversation_Reconciliation_Idempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 8).Draw(t, "count")
		type op struct {
			index      int
			optimistic bool
		}
		var ops []op
		confirmed := make([]chat.Message, count)
		for i := range count {
			hasOptimistic := rapid.Bool().Draw(t, fmt.Sprintf("optimistic-%d", i))
			message := textMessage("alice", fmt.Sprintf("message %d", i), t0.Add(time.Duration(i)*time.Minute))
			message.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprint(i)))
			if hasOptimistic {
				message.CorrelationID = chat.CorrelationID(fmt.Sprintf("opt-%d", i))
				ops = append(ops, op{index: i, optimistic: true})
			}
			confirmed[i] = message
			for range rapid.IntRange(1, 3).Draw(t, fmt.Sprintf("confirmations-%d", i)) {
				ops = append(ops, op{index: i})
			}
		}
		ops = rapid.Permutation(ops).Draw(t, "ops")

		conversation := NewConversation(nil)
		for _, o := range ops {
			message := confirmed[o.index]
			if o.optimistic {
				draft := optimistic("alice", message.Body.(chat.TextBody).Content, message.CreatedAt)
				conversation.AddOptimistic(draft, string(message.CorrelationID))
				continue
			}
			conversation.Confirm(message)
		}

		entries := conversation.Entries()
		if len(entries) != count {
			t.Fatalf("expected %d entries, got %d", count, len(entries))
		}
		for _, entry := range entries {
			if entry.State != Confirmed {
				t.Fatalf("entry %q is %s", entry.OptimisticID, entry.State)
			}
		}
		ids := lo.Uniq(lo.Map(entries, func(entry Entry, _ int) uuid.UUID { return entry.Message.ID }))
		if len(ids) != count {
			t.Fatalf("duplicated durable ids: %v", ids)
		}
	})
}

// Confirming optimistic entries never moves them relative to the other entries,
// whatever the server timestamp.
func TestConversation_Reconciliation_Position_Stability(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conversation := NewConversation(nil)
		count := rapid.IntRange(2, 10).Draw(t, "count")
		var pending []string
		for i := range count {
			at := t0.Add(time.Duration(rapid.IntRange(0, 600).Draw(t, fmt.Sprintf("at-%d", i))) * time.Second)
			content := fmt.Sprintf("message %d", i)
			if rapid.Bool().Draw(t, fmt.Sprintf("optimistic-%d", i)) {
				id := fmt.Sprintf("opt-%d", i)
				conversation.AddOptimistic(optimistic("alice", content, at), id)
				pending = append(pending, id)
				continue
			}
			conversation.Confirm(textMessage("bob", content, at))
		}
		before := contents(conversation.Entries())

		for _, id := range rapid.Permutation(pending).Draw(t, "confirmations") {
			var content string
			for _, entry := range conversation.Entries() {
				if entry.OptimisticID == id {
					content = entry.Message.Body.(chat.TextBody).Content
				}
			}
			server := t0.Add(time.Duration(rapid.IntRange(0, 600).Draw(t, "server-"+id)) * time.Second)
			message := textMessage("alice", content, server)
			message.CorrelationID = chat.CorrelationID(id)
			conversation.Confirm(message)
		}

		after := contents(conversation.Entries())
		if fmt.Sprint(before) != fmt.Sprint(after) {
			t.Fatalf("order changed from %v to %v", before, after)
		}
	})
}
