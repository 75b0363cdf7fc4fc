// Package realtime is a websocket client for the Phoenix-style presence
// backend. It only consumes the broadcast service: channel join/leave,
// track/untrack pushes and presence events, correlated by ref.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/domain"
	"github.com/voicedeck/voicedeck/internal/presence"
)

var (
	ErrClientClosed = errors.New("realtime: client closed")
	ErrBackpressure = errors.New("realtime: send buffer full")
)

const (
	writeWait         = 5 * time.Second
	heartbeatInterval = 30 * time.Second
	sendBuffer        = 32
)

// Client multiplexes channels over one websocket connection.
type Client struct {
	conn *websocket.Conn

	mu       sync.RWMutex
	channels map[string]*channel
	pending  map[string]chan Message
	closed   bool

	send   chan []byte
	refSeq uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects and starts the read/write/heartbeat loops.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		channels: make(map[string]*channel),
		pending:  make(map[string]chan Message),
		send:     make(chan []byte, sendBuffer),
		ctx:      cctx,
		cancel:   cancel,
	}

	go c.writePump()
	go c.readPump()
	go c.heartbeat()

	log.Info().Str("module", "realtime").Str("url", url).Msg("connected")
	return c, nil
}

// Channel returns the broadcast channel for one voice room. Topics follow the
// browser build's "voice-room-<id>" naming.
func (c *Client) Channel(roomID domain.RoomID, presenceKey string) presence.Channel {
	topic := "voice-room-" + string(roomID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[topic]; ok {
		return ch
	}
	ch := &channel{client: c, topic: topic, presenceKey: presenceKey}
	c.channels[topic] = ch
	return ch
}

// Close tears the connection down and fails every waiter.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for ref, ch := range c.pending {
		close(ch)
		delete(c.pending, ref)
	}
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.Close()
	log.Info().Str("module", "realtime").Msg("client closed")
}

// push sends one message and, when await is set, blocks for the matching
// phx_reply (or ctx cancellation, or client close).
func (c *Client) push(ctx context.Context, topic, event string, payload any, await bool) error {
	ref := strconv.FormatUint(atomic.AddUint64(&c.refSeq, 1), 10)

	data, err := encodeMessage(topic, event, payload, ref)
	if err != nil {
		return err
	}

	var replyCh chan Message
	if await {
		replyCh = make(chan Message, 1)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClientClosed
		}
		c.pending[ref] = replyCh
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.pending, ref)
			c.mu.Unlock()
		}()
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBackpressure
	}

	if !await {
		return nil
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return ErrClientClosed
		}
		return decodeReply(reply)
	case <-c.ctx.Done():
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "realtime").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "realtime").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Error().Err(err).Str("module", "realtime").Msg("readPump read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "realtime").Msg("bad json")
			continue
		}
		c.route(msg)
	}
}

func (c *Client) route(msg Message) {
	if msg.Event == eventReply {
		// Send under the lock so Close cannot close the channel mid-send.
		// Non-blocking: a duplicate reply on an already-served ref must not
		// stall the read pump.
		c.mu.RLock()
		if replyCh, ok := c.pending[msg.Ref]; ok {
			select {
			case replyCh <- msg:
			default:
			}
		}
		c.mu.RUnlock()
		return
	}

	c.mu.RLock()
	ch, ok := c.channels[msg.Topic]
	c.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "realtime").Str("topic", msg.Topic).Str("event", msg.Event).Msg("event for unknown topic")
		return
	}
	ch.dispatch(msg)
}

func (c *Client) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.push(c.ctx, heartbeatTopic, eventHeartbeat, struct{}{}, false); err != nil {
				log.Warn().Err(err).Str("module", "realtime").Msg("heartbeat send failed")
			}
		}
	}
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.channels, topic)
	c.mu.Unlock()
}
