package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"sync"
)

type sinkSet map[contract.EventSink]struct{}

// Registry maps a user to its single live connection and keeps the
// per-channel broadcast groups of those connections.
// It holds no persistent state: reconnecting clients register again after a restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[chat.UserID]contract.EventSink // user -> live connection
	owners   map[contract.EventSink]chat.UserID // live connection -> user
	groups   map[chat.ChannelID]sinkSet         // channel -> joined connections
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[chat.UserID]contract.EventSink),
		owners:   make(map[contract.EventSink]chat.UserID),
		groups:   make(map[chat.ChannelID]sinkSet),
	}
}

// Register associates a user with its connection.
// A previous connection of the same user is forgotten (last connect wins) but is
// left in its channel groups until it unregisters itself.
func (r *Registry) Register(userID chat.UserID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.sessions[userID]; ok && previous != sink {
		delete(r.owners, previous)
	}
	r.sessions[userID] = sink
	r.owners[sink] = userID
}

// Unregister removes the connection from the registry and from every group.
// Late or duplicated disconnects are no-ops, and a stale connection never
// removes the newer connection of the same user.
func (r *Registry) Unregister(sink contract.EventSink) (chat.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channelID, members := range r.groups {
		delete(members, sink)
		if len(members) == 0 {
			delete(r.groups, channelID)
		}
	}

	userID, ok := r.owners[sink]
	if !ok {
		return "", false
	}
	delete(r.owners, sink)
	if current, exists := r.sessions[userID]; exists && current == sink {
		delete(r.sessions, userID)
	}
	return userID, true
}

// Lookup returns the live connection of a user, false when the user is offline.
func (r *Registry) Lookup(userID chat.UserID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[userID]
	return sink, ok
}

func (r *Registry) Join(channelID chat.ChannelID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[channelID]; !ok {
		r.groups[channelID] = make(sinkSet)
	}
	r.groups[channelID][sink] = struct{}{}
}

// Leave removes the connection from a channel group.
// Empty groups are dropped to prevent memory leaks over time.
func (r *Registry) Leave(channelID chat.ChannelID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.groups[channelID]; ok {
		delete(members, sink)
		if len(members) == 0 {
			delete(r.groups, channelID)
		}
	}
}

// Group returns a snapshot of the connections joined to a channel.
// Returns nil if nobody joined the channel.
func (r *Registry) Group(channelID chat.ChannelID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[channelID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(members))
	for sink := range members {
		sinks = append(sinks, sink)
	}
	return sinks
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
