// Package projection builds the local view of a conversation from observed messages.
// Handles ordering, deduplication of optimistic copies and date separators.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-relay/domain/chat"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HeuristicWindow is the largest gap between an optimistic copy and an echoed
// message, without correlation id, for both to be considered the same message.
const HeuristicWindow = 2 * time.Second

type State string

const (
	Pending   State = "pending"
	Confirmed State = "confirmed"
	Failed    State = "failed"
)

// Entry is one message of the local view.
// An optimistic entry has no durable id yet and is known by its OptimisticID.
type Entry struct {
	Message      chat.Message
	OptimisticID string
	State        State
	Seq          uint64

	// at orders the entry. It is the time the entry was first inserted with and
	// does not move when a confirmation replaces the optimistic copy.
	at time.Time
}

type ItemKind int

const (
	MessageItem ItemKind = iota
	DateSeparator
)

// Item is an element of the rendered list: an entry or a date separator.
type Item struct {
	Kind  ItemKind
	Day   time.Time
	Entry Entry
}

// Conversation is safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	entries  []Entry
	seq      uint64
	location *time.Location
}

// NewConversation uses UTC days when location is nil.
func NewConversation(location *time.Location) *Conversation {
	if location == nil {
		location = time.UTC
	}
	return &Conversation{location: location}
}

// AddOptimistic renders a message before the server confirmed it.
// Adding the same optimistic id twice, or after its confirmation already arrived, is a no-op.
func (c *Conversation) AddOptimistic(message chat.Message, optimisticID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if optimisticID == "" {
		optimisticID = uuid.NewString()
	}
	for _, entry := range c.entries {
		if entry.OptimisticID == optimisticID || string(entry.Message.CorrelationID) == optimisticID {
			return
		}
	}
	message.CorrelationID = chat.CorrelationID(optimisticID)
	c.insert(Entry{Message: message, OptimisticID: optimisticID, State: Pending})
}

// Confirm merges a message coming from the server.
// The matching entry, searched by durable id, then correlation id, then by
// content for an echo without correlation id, is replaced in place.
// An unmatched message is inserted by its timestamp.
// It returns true when an existing entry was replaced.
func (c *Conversation) Confirm(message chat.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.match(message)
	if i < 0 {
		c.insert(Entry{Message: message, State: Confirmed})
		return false
	}
	c.entries[i].Message = message
	c.entries[i].State = Confirmed
	return true
}

func (c *Conversation) match(message chat.Message) int {
	if message.ID != uuid.Nil {
		for i, entry := range c.entries {
			if entry.Message.ID == message.ID {
				return i
			}
		}
	}
	if message.CorrelationID != "" {
		for i, entry := range c.entries {
			if entry.OptimisticID != "" && entry.OptimisticID == string(message.CorrelationID) {
				return i
			}
		}
		return -1
	}
	for i, entry := range c.entries {
		if entry.State == Pending && sameContent(entry.Message, message) {
			return i
		}
	}
	return -1
}

func sameContent(optimistic, confirmed chat.Message) bool {
	if optimistic.Sender.ID != confirmed.Sender.ID || optimistic.Body == nil || confirmed.Body == nil {
		return false
	}
	if optimistic.Body.Kind() != confirmed.Body.Kind() {
		return false
	}
	gap := confirmed.CreatedAt.Sub(optimistic.CreatedAt)
	if gap < -HeuristicWindow || gap > HeuristicWindow {
		return false
	}
	switch body := optimistic.Body.(type) {
	case chat.TextBody:
		return body.Content == confirmed.Body.(chat.TextBody).Content
	case chat.FileBody:
		return body.URL == confirmed.Body.(chat.FileBody).URL
	default:
		return false
	}
}

// MarkFailed turns a pending entry into a failed one.
func (c *Conversation) MarkFailed(optimisticID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, entry := range c.entries {
		if entry.OptimisticID == optimisticID && entry.State == Pending {
			c.entries[i].State = Failed
			return true
		}
	}
	return false
}

// ExpirePending fails every entry still pending after the timeout and returns their optimistic ids.
func (c *Conversation) ExpirePending(now time.Time, timeout time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for i, entry := range c.entries {
		if entry.State == Pending && now.Sub(entry.at) >= timeout {
			c.entries[i].State = Failed
			expired = append(expired, entry.OptimisticID)
		}
	}
	return expired
}

// Entries returns the entries by timestamp, ties broken by insertion order.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].at.Equal(entries[j].at) {
			return entries[i].at.Before(entries[j].at)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries
}

// Items returns the entries preceded by a date separator at every change of day.
func (c *Conversation) Items() []Item {
	entries := c.Entries()
	items := make([]Item, 0, len(entries)+1)
	var current time.Time
	for _, entry := range entries {
		day := c.day(entry.at)
		if current.IsZero() || !day.Equal(current) {
			items = append(items, Item{Kind: DateSeparator, Day: day})
			current = day
		}
		items = append(items, Item{Kind: MessageItem, Day: day, Entry: entry})
	}
	return items
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Conversation) day(at time.Time) time.Time {
	local := at.In(c.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)
}

func (c *Conversation) insert(entry Entry) {
	c.seq++
	entry.Seq = c.seq
	entry.at = entry.Message.CreatedAt
	c.entries = append(c.entries, entry)
}
