// Package websocket serves live connections: the handshake, one read pump and one
// write pump per connection, and the translation of frames into chat service calls.
package websocket

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	SendBuffer     int
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxFrameSize   int64
	IntentTimeout  time.Duration
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:    256,
		PingPeriod:    54 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     10 * time.Second,
		MaxFrameSize:  64 * 1024,
		IntentTimeout: 10 * time.Second,
	}
}

// Server upgrades authenticated requests. The identity is read from the request
// context, so the handler is mounted behind auth.Middleware.
type Server struct {
	log      *slog.Logger
	chat     services.IChatService
	upgrader websocket.Upgrader
	cfg      Config

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup
}

func NewServer(log *slog.Logger, chatService services.IChatService, cfg Config) *Server {
	s := &Server{
		log:   log,
		chat:  chatService,
		cfg:   cfg,
		conns: make(map[*Connection]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts every origin when none is configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	s.log.Warn("Origin refused", "origin", origin)
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, errors.ErrMissingToken.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied
		s.log.Debug("Upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := newConnection(s.log, conn, chat.UserID(userID), s.cfg)
	if err = s.chat.Connect(context.Background(), c.userID, c); err != nil {
		s.log.Error("Connection refused", "user_id", userID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "unavailable"),
			time.Now().Add(s.cfg.WriteWait))
		_ = conn.Close()
		return
	}

	s.track(c)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		s.readPump(c)
	}()
}

// readPump handles the frames of one connection one after the other: an intent
// is persisted and dispatched before the next one is read.
func (s *Server) readPump(c *Connection) {
	defer func() {
		s.chat.Disconnect(c)
		s.untrack(c)
		c.Close()
	}()

	c.conn.SetReadLimit(s.cfg.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Connection lost", "error", err)
			}
			return
		}
		s.handle(c, data)
	}
}

func (s *Server) handle(c *Connection, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IntentTimeout)
	defer cancel()

	envelope, err := protocol.Decode(data)
	if err != nil {
		s.reject(ctx, c, "", err)
		return
	}

	switch envelope.Type {
	case protocol.SendDirectMessageType:
		payload, body, err := sendIntent(envelope)
		if err != nil {
			s.reject(ctx, c, chat.CorrelationID(payload.CorrelationID), err)
			return
		}
		_, _ = s.chat.SendDirectMessage(ctx, c, chat.SendDirectMessageCommand{
			Sender:        c.userID,
			ClaimedSender: chat.UserID(payload.Sender),
			Recipient:     chat.UserID(payload.Recipient),
			Body:          body,
			CorrelationID: chat.CorrelationID(payload.CorrelationID),
		})
	case protocol.SendChannelMessageType:
		payload, body, err := sendIntent(envelope)
		if err != nil {
			s.reject(ctx, c, chat.CorrelationID(payload.CorrelationID), err)
			return
		}
		_, _ = s.chat.SendChannelMessage(ctx, c, chat.SendChannelMessageCommand{
			Sender:        c.userID,
			ClaimedSender: chat.UserID(payload.Sender),
			Channel:       chat.ChannelID(payload.ChannelID),
			Body:          body,
			CorrelationID: chat.CorrelationID(payload.CorrelationID),
		})
	case protocol.JoinChannelType:
		payload, err := protocol.Payload[protocol.ChannelPayload](envelope)
		if err == nil {
			err = s.chat.JoinChannel(ctx, c.userID, chat.ChannelID(payload.ChannelID), c)
		}
		if err != nil {
			s.reject(ctx, c, "", err)
		}
	case protocol.LeaveChannelType:
		payload, err := protocol.Payload[protocol.ChannelPayload](envelope)
		if err != nil {
			s.reject(ctx, c, "", err)
			return
		}
		s.chat.LeaveChannel(chat.ChannelID(payload.ChannelID), c)
	default:
		s.reject(ctx, c, "", fmt.Errorf("%w: %s", errors.ErrUnknownEvent, envelope.Type))
	}
}

func sendIntent(envelope protocol.Envelope) (protocol.SendMessagePayload, chat.Body, error) {
	payload, err := protocol.Payload[protocol.SendMessagePayload](envelope)
	if err != nil {
		return payload, nil, err
	}
	body, err := payload.Body()
	return payload, body, err
}

func (s *Server) reject(ctx context.Context, c *Connection, correlationID chat.CorrelationID, err error) {
	c.log.Debug("Frame rejected", "correlation_id", correlationID, "error", err)
	if consumeErr := c.Consume(ctx, event.SendRejected{CorrelationID: correlationID, Err: err}); consumeErr != nil {
		c.log.Debug("Rejection not delivered", "error", consumeErr)
	}
}

func (s *Server) track(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Shutdown closes every live connection and waits for their pumps to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
