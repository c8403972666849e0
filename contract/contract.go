//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the handle of one live connection.
// Implementations must be comparable (pointer receivers) since the registry
// identifies a connection by its handle.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	Register(userID chat.UserID, sink EventSink)
	Unregister(sink EventSink) (chat.UserID, bool)
	Lookup(userID chat.UserID) (EventSink, bool)
	Join(channelID chat.ChannelID, sink EventSink)
	Leave(channelID chat.ChannelID, sink EventSink)
	Group(channelID chat.ChannelID) []EventSink
	Online() int
}

type IMembershipResolver interface {
	MembersOf(ctx context.Context, channelID chat.ChannelID) (chat.Set, error)
	IsMember(ctx context.Context, channelID chat.ChannelID, userID chat.UserID) (bool, error)
	ChannelsOf(ctx context.Context, userID chat.UserID) ([]chat.ChannelID, error)
}

type IMessageGateway interface {
	Append(ctx context.Context, draft chat.Draft) (chat.Message, error)
}

type IDispatcher interface {
	Dispatch(ctx context.Context, message chat.Message, audience chat.Set)
	Broadcast(ctx context.Context, channelID chat.ChannelID, e event.DomainEvent)
}

// IModerator masks forbidden words of a text and reports the words found.
type IModerator interface {
	Censor(text string) (string, []string)
}
