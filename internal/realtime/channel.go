package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/domain"
	"github.com/voicedeck/voicedeck/internal/presence"
)

var errNotSubscribed = errors.New("realtime: channel not subscribed")

const leaveWait = 2 * time.Second

// channel is one topic's view over the shared client connection.
type channel struct {
	client      *Client
	topic       string
	presenceKey string

	mu       sync.Mutex
	handlers presence.Handlers
	onStatus func(presence.Status)
	joined   bool
}

var _ presence.Channel = (*channel)(nil)

func (ch *channel) Subscribe(ctx context.Context, h presence.Handlers, onStatus func(presence.Status)) error {
	ch.mu.Lock()
	if ch.joined {
		ch.mu.Unlock()
		return nil
	}
	ch.handlers = h
	ch.onStatus = onStatus
	ch.mu.Unlock()

	if err := ch.client.push(ctx, ch.topic, eventJoin, newJoinPayload(ch.presenceKey), true); err != nil {
		ch.status(presence.StatusError)
		return err
	}

	ch.mu.Lock()
	ch.joined = true
	ch.mu.Unlock()
	ch.status(presence.StatusSubscribed)
	return nil
}

func (ch *channel) Track(ctx context.Context, entry domain.PresenceEntry) error {
	if !ch.isJoined() {
		return errNotSubscribed
	}
	push := presencePush{Type: "presence", Event: "track", Payload: &entry}
	return ch.client.push(ctx, ch.topic, eventPresence, push, true)
}

func (ch *channel) Untrack(ctx context.Context) error {
	if !ch.isJoined() {
		return nil
	}
	push := presencePush{Type: "presence", Event: "untrack"}
	return ch.client.push(ctx, ch.topic, eventPresence, push, true)
}

func (ch *channel) Unsubscribe() error {
	ch.mu.Lock()
	wasJoined := ch.joined
	ch.joined = false
	ch.mu.Unlock()

	ch.client.forget(ch.topic)

	if wasJoined {
		ctx, cancel := context.WithTimeout(context.Background(), leaveWait)
		defer cancel()
		if err := ch.client.push(ctx, ch.topic, eventLeave, struct{}{}, true); err != nil && !errors.Is(err, ErrClientClosed) {
			ch.status(presence.StatusClosed)
			return err
		}
	}
	ch.status(presence.StatusClosed)
	return nil
}

// dispatch runs on the client's read loop. It is gated on registered handlers,
// not on the join ack: the backend sends the initial presence_state right
// behind the phx_reply, often before the subscribing goroutine has observed it.
func (ch *channel) dispatch(msg Message) {
	ch.mu.Lock()
	h := ch.handlers
	ch.mu.Unlock()

	switch msg.Event {
	case eventPresenceState:
		var state presenceSet
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			log.Error().Err(err).Str("module", "realtime").Str("topic", ch.topic).Msg("bad presence_state")
			return
		}
		if h.Sync != nil {
			h.Sync(state.entries())
		}
	case eventPresenceDiff:
		var diff presenceDiff
		if err := json.Unmarshal(msg.Payload, &diff); err != nil {
			log.Error().Err(err).Str("module", "realtime").Str("topic", ch.topic).Msg("bad presence_diff")
			return
		}
		if joins := diff.Joins.entries(); len(joins) > 0 && h.Join != nil {
			h.Join(joins)
		}
		if leaves := diff.Leaves.entries(); len(leaves) > 0 && h.Leave != nil {
			h.Leave(leaves)
		}
	default:
		log.Debug().Str("module", "realtime").Str("topic", ch.topic).Str("event", msg.Event).Msg("unhandled event")
	}
}

func (ch *channel) isJoined() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.joined
}

func (ch *channel) status(s presence.Status) {
	ch.mu.Lock()
	cb := ch.onStatus
	ch.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
