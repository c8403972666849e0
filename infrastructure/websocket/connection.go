package websocket

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the handle of one live WebSocket connection.
// Consume queues frames for the write pump. Once closed, Consume returns
// errors.ErrConnectionClosed, so a stale handle is harmless.
type Connection struct {
	conn      *websocket.Conn
	userID    chat.UserID
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
	cfg       Config
}

func newConnection(log *slog.Logger, conn *websocket.Conn, userID chat.UserID, cfg Config) *Connection {
	return &Connection{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		log:    log.With("user_id", userID),
		cfg:    cfg,
	}
}

func (c *Connection) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}

	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrSinkFull, ctx.Err())
	}
}

// Close stops the write pump. It can be called several times.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writePump owns every write on the socket. It flushes queued frames and pings
// the peer until the connection is closed.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before the close, best effort.
func (c *Connection) drain() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
