package gateway

import (
	"chat-engine/domain"
	"chat-engine/domain/event"
	"chat-engine/errors"
	"chat-engine/runtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 * 1024
)

// Client is one live websocket session. It implements
// contract.ConnectionHandle: the engine pushes events through Consume into a
// buffered send channel drained by the write pump, and tears the transport
// down through Close. A full send buffer counts as a transport failure; the
// engine decides what to do with the dropped event.
type Client struct {
	id         domain.ConnectionID
	identityID string
	conn       *websocket.Conn
	engine     *runtime.Orchestrator
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64
	announced  atomic.Bool
	log        *slog.Logger
}

func NewClient(conn *websocket.Conn, engine *runtime.Orchestrator, identityID string, bufferSize int, log *slog.Logger) *Client {
	c := &Client{
		id:         domain.NewConnectionID(),
		identityID: identityID,
		conn:       conn,
		engine:     engine,
		send:       make(chan []byte, bufferSize),
		done:       make(chan struct{}),
		log:        log,
	}
	c.touch()
	return c
}

func (c *Client) ID() domain.ConnectionID { return c.id }

func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// Consume encodes the event and queues it for the write pump. Never blocks:
// a closed or saturated connection yields a transport failure instead.
func (c *Client) Consume(ctx context.Context, e event.DomainEvent) error {
	data, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.ErrTransportFailure
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", errors.ErrTransportFailure)
	}
}

// Close shuts the transport down once. The reason travels in the websocket
// close frame; a superseded connection learns why it was evicted from it.
func (c *Client) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)
		err = c.conn.Close()
	})
	return err
}

// readPump drives the connection: every inbound frame is decoded, validated
// and dispatched to the engine. Exiting the loop (error, close, eviction)
// triggers the engine disconnect path exactly once.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.engine.Disconnect(ctx, c)
		_ = c.Close("")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket read failed",
					"connection", string(c.id), "error", err)
			}
			return
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(ctx, raw)
	}
}

// writePump drains the send channel and keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close("")
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.pushError(ctx, "invalid-payload", "frame is not valid JSON")
		return
	}

	if frame.Type != "announce" && !c.announced.Load() {
		c.pushError(ctx, "not-announced", "announce before any other event")
		return
	}

	switch frame.Type {
	case "announce":
		c.handleAnnounce(ctx, frame.Payload)
	case "join-room":
		c.handleJoinRoom(ctx, frame.Payload)
	case "send-private":
		c.handleSendPrivate(ctx, frame.Payload)
	case "send-room":
		c.handleSendRoom(ctx, frame.Payload)
	case "typing-start":
		c.handleTyping(ctx, frame.Payload, true)
	case "typing-stop":
		c.handleTyping(ctx, frame.Payload, false)
	default:
		c.pushError(ctx, "unknown-event", fmt.Sprintf("unknown event type %q", frame.Type))
	}
}

func (c *Client) handleAnnounce(ctx context.Context, raw json.RawMessage) {
	payload, err := decodePayload[AnnouncePayload](raw)
	if err != nil {
		c.pushError(ctx, "invalid-payload", err.Error())
		return
	}
	// The identity was authenticated at the handshake; the announce payload
	// must agree with it.
	if payload.IdentityID != c.identityID {
		c.pushError(ctx, "identity-mismatch", "announce does not match the authenticated identity")
		return
	}
	if _, err := c.engine.Announce(ctx, c, c.identityID); err != nil {
		c.log.Error("Announce failed", "identity", c.identityID, "error", err)
		c.pushError(ctx, "announce-failed", "failed to join chat")
		return
	}
	c.announced.Store(true)
}

func (c *Client) handleJoinRoom(ctx context.Context, raw json.RawMessage) {
	payload, err := decodePayload[JoinRoomPayload](raw)
	if err != nil {
		c.pushError(ctx, "invalid-payload", err.Error())
		return
	}
	c.engine.JoinRoom(ctx, c, domain.RoomID(payload.RoomID), payload.RoomDisplayName)
}

func (c *Client) handleSendPrivate(ctx context.Context, raw json.RawMessage) {
	payload, err := decodePayload[SendPrivatePayload](raw)
	if err != nil {
		c.pushError(ctx, "invalid-payload", err.Error())
		return
	}
	// The result travels back as the message-sent acknowledgment; a failed
	// delivery is a result, not a wire error.
	c.engine.SendPrivate(ctx, c, payload.ToIdentityID, payload.Body)
}

func (c *Client) handleSendRoom(ctx context.Context, raw json.RawMessage) {
	payload, err := decodePayload[SendRoomPayload](raw)
	if err != nil {
		c.pushError(ctx, "invalid-payload", err.Error())
		return
	}
	c.engine.SendRoom(ctx, c, payload.Body)
}

func (c *Client) handleTyping(ctx context.Context, raw json.RawMessage, start bool) {
	payload, err := decodePayload[TypingPayload](raw)
	if err != nil {
		c.pushError(ctx, "invalid-payload", err.Error())
		return
	}
	dest := payload.AsDestination()
	if !start {
		c.engine.StopTyping(ctx, c, dest)
		return
	}
	if err := c.engine.StartTyping(ctx, c, dest); err != nil {
		c.pushError(ctx, "not-a-member", "typing into a room requires membership")
	}
}

func (c *Client) pushError(ctx context.Context, code, message string) {
	if err := c.Consume(ctx, event.Error{Code: code, Message: message}); err != nil {
		c.log.Debug("Error event dropped", "connection", string(c.id), "error", err)
	}
}
