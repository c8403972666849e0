package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher pushes persisted messages to the live connections of their audience.
//
// Delivery is best-effort: an offline recipient is skipped and a failing or slow
// connection never affects the others, nor the sender.
// Dispatch returns once every attempt finished or timed out, so two consecutive
// dispatches reach a given connection in the same order.
type Dispatcher struct {
	log         *slog.Logger
	registry    contract.IRegistry
	sinkTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, registry contract.IRegistry, sinkTimeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, registry: registry, sinkTimeout: sinkTimeout}
}

// Audience returns who should receive the message.
// A direct message goes to both ends of the conversation, so the other tabs of the
// sender see it too. A channel message goes to every member but the sender.
func Audience(message chat.Message, members chat.Set) chat.Set {
	switch t := message.Target.(type) {
	case chat.DirectTarget:
		return chat.NewSet(message.Sender.ID, t.Recipient)
	case chat.ChannelTarget:
		return members.Without(message.Sender.ID)
	default:
		return chat.NewSet()
	}
}

// Dispatch delivers the message to the live connection of every audience member.
// The sender is removed from the audience of a channel message whatever the caller passed.
func (d *Dispatcher) Dispatch(ctx context.Context, message chat.Message, audience chat.Set) {
	var evt event.DomainEvent
	switch message.Target.(type) {
	case chat.DirectTarget:
		evt = event.DirectMessageReceived{Message: message, CorrelationID: message.CorrelationID}
	case chat.ChannelTarget:
		audience = audience.Without(message.Sender.ID)
		evt = event.ChannelMessageReceived{Message: message, CorrelationID: message.CorrelationID}
	default:
		d.log.Warn("Message without target is not dispatched", "message_id", message.ID)
		return
	}

	sinks := make([]contract.EventSink, 0, len(audience))
	for _, userID := range audience.Sorted() {
		sink, ok := d.registry.Lookup(userID)
		if !ok {
			d.log.Debug("Recipient offline, skipped", "user_id", userID, "message_id", message.ID)
			continue
		}
		sinks = append(sinks, sink)
	}
	d.fanout(ctx, sinks, evt)
}

// Broadcast pushes an event to every connection joined to the channel group.
func (d *Dispatcher) Broadcast(ctx context.Context, channelID chat.ChannelID, e event.DomainEvent) {
	d.fanout(ctx, d.registry.Group(channelID), e)
}

// fanout runs one goroutine per sink, each bounded by the sink timeout.
func (d *Dispatcher) fanout(ctx context.Context, sinks []contract.EventSink, e event.DomainEvent) {
	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
			defer cancel()
			if err := s.Consume(ctx, e); err != nil {
				d.log.Debug("Delivery failed", "event", e.Type(), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}
