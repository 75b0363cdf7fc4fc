// Package app wires the room session manager and the presence synchronizer:
// the session owns the media connection, presence mirrors it into the
// broadcast channels.
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/domain"
	"github.com/voicedeck/voicedeck/internal/presence"
	"github.com/voicedeck/voicedeck/internal/session"
)

type Voice struct {
	Session  *session.Manager
	Presence *presence.Synchronizer

	rooms []domain.Room
}

func NewVoice(sess *session.Manager, pres *presence.Synchronizer, rooms []domain.Room) *Voice {
	v := &Voice{
		Session:  sess,
		Presence: pres,
		rooms:    rooms,
	}
	sess.OnChange(v.onSessionChange)
	return v
}

// Start subscribes presence for every known room.
func (v *Voice) Start(ctx context.Context) {
	ids := make([]domain.RoomID, 0, len(v.rooms))
	for _, r := range v.rooms {
		ids = append(ids, r.ID)
	}
	v.Presence.SubscribeAll(ctx, ids)
}

// Join enters a voice room. ErrJoinInProgress surfaces to the caller, who may
// simply retry once the current attempt settles.
func (v *Voice) Join(ctx context.Context, roomID domain.RoomID) error {
	return v.Session.Join(ctx, domain.RoomName(roomID))
}

// Leave disconnects from the current room, if any.
func (v *Voice) Leave() {
	v.Session.Leave()
}

// Rooms lists the known voice rooms.
func (v *Voice) Rooms() []domain.Room {
	return v.rooms
}

// Stop leaves the room and releases every presence channel, in that order.
func (v *Voice) Stop(ctx context.Context) {
	v.Session.Leave()
	v.Presence.UnsubscribeAll(ctx)
}

// onSessionChange moves the local presence record to wherever the session is
// connected: old room first, new room after, nothing while connecting.
func (v *Voice) onSessionChange(snap session.Snapshot) {
	ctx := context.Background()
	switch {
	case snap.Connected:
		if err := v.Presence.PublishSelf(ctx, domain.RoomID(snap.RoomName)); err != nil {
			log.Error().Err(err).Str("module", "app").Str("room", string(snap.RoomName)).Msg("publish presence")
		}
	case !snap.Connecting:
		if err := v.Presence.PublishSelf(ctx, ""); err != nil {
			log.Error().Err(err).Str("module", "app").Msg("clear presence")
		}
	}
}
