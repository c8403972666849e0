// Package client is a Go chat client: it keeps one optimistic local view per
// conversation and reconciles it with what the server pushes.
package client

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/projection"
	"chat-relay/protocol"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const DefaultPendingTimeout = 15 * time.Second

type Options struct {
	// ServerURL is the http(s) base url of the server.
	ServerURL      string
	PendingTimeout time.Duration
	// Location decides the day of the date separators, UTC when nil.
	Location *time.Location
	Updates  int
}

// Update tells which conversation changed, and why.
type Update struct {
	Conversation string
	Event        event.DomainEvent
}

type Client struct {
	log            *slog.Logger
	baseURL        string
	http           *http.Client
	pendingTimeout time.Duration
	location       *time.Location

	mu            sync.Mutex
	token         string
	self          chat.Profile
	conversations map[string]*projection.Conversation
	// pending maps a correlation id to the conversation of its optimistic entry
	pending map[chat.CorrelationID]string

	writeMu sync.Mutex
	conn    *websocket.Conn
	updates chan Update
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(log *slog.Logger, options Options) *Client {
	if options.PendingTimeout <= 0 {
		options.PendingTimeout = DefaultPendingTimeout
	}
	if options.Updates <= 0 {
		options.Updates = 64
	}
	return &Client{
		log:            log,
		baseURL:        strings.TrimSuffix(options.ServerURL, "/"),
		http:           &http.Client{Timeout: 30 * time.Second},
		pendingTimeout: options.PendingTimeout,
		location:       options.Location,
		conversations:  make(map[string]*projection.Conversation),
		pending:        make(map[chat.CorrelationID]string),
		updates:        make(chan Update, options.Updates),
		done:           make(chan struct{}),
	}
}

func (c *Client) Self() chat.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Updates is closed when the live connection ends.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Conversation returns the local view of a conversation key, created on first use.
func (c *Client) Conversation(key string) *projection.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conversation, ok := c.conversations[key]
	if !ok {
		conversation = projection.NewConversation(c.location)
		c.conversations[key] = conversation
	}
	return conversation
}

// Connect opens the live connection with the session token. Login or Register first.
func (c *Client) Connect(ctx context.Context) error {
	token := c.currentToken()
	if token == "" {
		return errors.ErrMissingToken
	}
	wsURL, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("%w: server url: %v", errors.ErrValidation, err)
	}
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/ws"
	wsURL.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", errors.ErrTransientIO, wsURL.Host, err)
	}
	c.conn = conn

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.expireLoop()
	}()
	return nil
}

// Close ends the live connection and waits for the background loops.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// SendDirect renders the message at once as pending, then sends it.
// It returns the correlation id used to follow the message.
func (c *Client) SendDirect(recipient chat.UserID, body chat.Body) (chat.CorrelationID, error) {
	payload := protocol.SendMessagePayload{Recipient: string(recipient)}
	return c.send(protocol.SendDirectMessageType, chat.DirectTarget{Recipient: recipient}, body, payload)
}

func (c *Client) SendChannel(channelID chat.ChannelID, body chat.Body) (chat.CorrelationID, error) {
	payload := protocol.SendMessagePayload{ChannelID: string(channelID)}
	return c.send(protocol.SendChannelMessageType, chat.ChannelTarget{Channel: channelID}, body, payload)
}

func (c *Client) send(frameType string, target chat.Target, body chat.Body, payload protocol.SendMessagePayload) (chat.CorrelationID, error) {
	self := c.Self()
	correlationID := chat.CorrelationID(uuid.NewString())
	optimistic := chat.Message{
		Sender:        self,
		Target:        target,
		Body:          body,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}
	key := optimistic.Conversation()
	conversation := c.Conversation(key)
	conversation.AddOptimistic(optimistic, string(correlationID))

	c.mu.Lock()
	c.pending[correlationID] = key
	c.mu.Unlock()

	payload.Sender = string(self.ID)
	payload.CorrelationID = string(correlationID)
	if err := c.write(frameType, payload.WithBody(body)); err != nil {
		conversation.MarkFailed(string(correlationID))
		c.forget(correlationID)
		return correlationID, err
	}
	return correlationID, nil
}

// OpenChannel joins the live group of a channel, needed for a channel joined
// after the connection was opened.
func (c *Client) OpenChannel(channelID chat.ChannelID) error {
	return c.write(protocol.JoinChannelType, protocol.ChannelPayload{ChannelID: string(channelID)})
}

func (c *Client) CloseChannel(channelID chat.ChannelID) error {
	return c.write(protocol.LeaveChannelType, protocol.ChannelPayload{ChannelID: string(channelID)})
}

func (c *Client) write(frameType string, payload any) error {
	if c.conn == nil {
		return errors.ErrConnectionClosed
	}
	frame, err := protocol.Frame(frameType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err = c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.updates)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("Connection lost", "error", err)
			}
			return
		}
		envelope, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("Frame ignored", "error", err)
			continue
		}
		e, err := protocol.DecodeEvent(envelope)
		if err != nil {
			c.log.Warn("Event ignored", "type", envelope.Type, "error", err)
			continue
		}
		if key := c.apply(e); key != "" {
			c.publish(Update{Conversation: key, Event: e})
		}
	}
}

// apply merges an event into the local views and returns the conversation it changed.
func (c *Client) apply(e event.DomainEvent) string {
	switch evt := e.(type) {
	case event.DirectMessageReceived:
		return c.confirm(evt.Message)
	case event.ChannelMessageReceived:
		return c.confirm(evt.Message)
	case event.SendAcknowledged:
		return c.confirm(evt.Message)
	case event.SendRejected:
		c.mu.Lock()
		key, ok := c.pending[evt.CorrelationID]
		c.mu.Unlock()
		if !ok {
			c.log.Warn("Send rejected", "error", evt.Err)
			return ""
		}
		var remote protocol.RemoteError
		if errors.As(evt.Err, &remote) && remote.Retryable {
			// Still pending: expires unless a retry is confirmed
			return key
		}
		c.Conversation(key).MarkFailed(string(evt.CorrelationID))
		c.forget(evt.CorrelationID)
		return key
	case event.ChannelUpdated:
		return chat.ConversationKey(c.Self().ID, chat.ChannelTarget{Channel: evt.Channel.ID})
	case event.ChannelDeleted:
		key := chat.ConversationKey(c.Self().ID, chat.ChannelTarget{Channel: evt.ChannelID})
		c.mu.Lock()
		delete(c.conversations, key)
		c.mu.Unlock()
		return key
	default:
		return ""
	}
}

func (c *Client) confirm(message chat.Message) string {
	key := message.Conversation()
	c.Conversation(key).Confirm(message)
	if message.CorrelationID != "" {
		c.forget(message.CorrelationID)
	}
	return key
}

func (c *Client) forget(correlationID chat.CorrelationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, correlationID)
}

// publish never blocks the read loop, a slow reader misses notifications but
// the local views stay up to date.
func (c *Client) publish(update Update) {
	select {
	case c.updates <- update:
	default:
		c.log.Debug("Update dropped", "conversation", update.Conversation)
	}
}

func (c *Client) expireLoop() {
	ticker := time.NewTicker(c.pendingTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.expire(now)
		}
	}
}

func (c *Client) expire(now time.Time) {
	c.mu.Lock()
	keys := make(map[string]struct{}, len(c.pending))
	for _, key := range c.pending {
		keys[key] = struct{}{}
	}
	c.mu.Unlock()

	for key := range keys {
		for _, id := range c.Conversation(key).ExpirePending(now, c.pendingTimeout) {
			c.log.Debug("Message expired", "conversation", key, "correlation_id", id)
			c.forget(chat.CorrelationID(id))
		}
	}
}
