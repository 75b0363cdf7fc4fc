// Package presence keeps a per-room view of announced users in sync with a
// remote broadcast source, and publishes the local user's own record into at
// most one room at a time.
package presence

import (
	"context"

	"github.com/voicedeck/voicedeck/internal/domain"
)

// Status reports the lifecycle of a channel subscription.
type Status int

const (
	StatusSubscribed Status = iota
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Handlers is the typed handler set registered on a channel. Sync carries the
// authoritative snapshot; Join/Leave carry deltas.
type Handlers struct {
	Sync  func(snapshot []domain.PresenceEntry)
	Join  func(joined []domain.PresenceEntry)
	Leave func(left []domain.PresenceEntry)
}

// Channel is one room's broadcast channel.
// Owned by the synchronizer; Unsubscribe must release every resource.
type Channel interface {
	Subscribe(ctx context.Context, h Handlers, onStatus func(Status)) error
	Track(ctx context.Context, entry domain.PresenceEntry) error
	Untrack(ctx context.Context) error
	Unsubscribe() error
}

// Provider hands out channels keyed by room id. The presence key identifies
// the local user to the broadcast backend.
type Provider interface {
	Channel(roomID domain.RoomID, presenceKey string) Channel
}
