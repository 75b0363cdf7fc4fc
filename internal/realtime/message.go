package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/voicedeck/voicedeck/internal/domain"
)

// Wire events of the channel protocol.
const (
	eventJoin          = "phx_join"
	eventLeave         = "phx_leave"
	eventReply         = "phx_reply"
	eventHeartbeat     = "heartbeat"
	eventPresence      = "presence"
	eventPresenceState = "presence_state"
	eventPresenceDiff  = "presence_diff"

	heartbeatTopic = "phoenix"

	statusOK = "ok"
)

// Message is the wire envelope. Ref correlates pushes with their replies.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// joinPayload carries the presence key so the backend attributes tracked
// records to this client.
type joinPayload struct {
	Config struct {
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
	} `json:"config"`
}

func newJoinPayload(presenceKey string) joinPayload {
	var p joinPayload
	p.Config.Presence.Key = presenceKey
	return p
}

// presencePush is the client->server track/untrack message body.
type presencePush struct {
	Type    string                `json:"type"`
	Event   string                `json:"event"`
	Payload *domain.PresenceEntry `json:"payload,omitempty"`
}

// presenceSet is the server's keyed presence map: presence key -> metas.
type presenceSet map[string]struct {
	Metas []domain.PresenceEntry `json:"metas"`
}

func (ps presenceSet) entries() []domain.PresenceEntry {
	out := make([]domain.PresenceEntry, 0, len(ps))
	for _, v := range ps {
		// Only the newest meta per key is relevant for the room view.
		if len(v.Metas) > 0 {
			out = append(out, v.Metas[len(v.Metas)-1])
		}
	}
	return out
}

type presenceDiff struct {
	Joins  presenceSet `json:"joins"`
	Leaves presenceSet `json:"leaves"`
}

func encodeMessage(topic, event string, payload any, ref string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s payload: %w", event, err)
	}
	return json.Marshal(Message{Topic: topic, Event: event, Payload: raw, Ref: ref})
}

func decodeReply(m Message) error {
	var rp replyPayload
	if err := json.Unmarshal(m.Payload, &rp); err != nil {
		return fmt.Errorf("realtime: decode reply: %w", err)
	}
	if rp.Status != statusOK {
		return fmt.Errorf("realtime: push rejected with status %q", rp.Status)
	}
	return nil
}
