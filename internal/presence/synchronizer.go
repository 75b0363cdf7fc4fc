package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/domain"
)

var ErrClosed = errors.New("presence: synchronizer closed")

// UpdateFunc is notified with a fresh copy of a room's entry set after every
// table mutation, so a view layer can re-render the channel list.
type UpdateFunc func(roomID domain.RoomID, entries []domain.PresenceEntry)

// Synchronizer reconciles sync/join/leave broadcast events into a local
// per-room table, and tracks the local user's own record in exactly one room.
//
// All remote mutations funnel through the table mutex; PublishSelf calls are
// serialized by a separate mutex held across the untrack/track round trips, so
// a stale completion can never overwrite fresher state and the local user is
// never visible in two rooms at once.
type Synchronizer struct {
	provider Provider
	self     domain.User
	onUpdate UpdateFunc

	mu       sync.Mutex
	channels map[domain.RoomID]Channel
	table    map[domain.RoomID]map[domain.UserID]domain.PresenceEntry
	closed   bool

	pubMu    sync.Mutex
	selfRoom domain.RoomID // "" while not tracked anywhere
}

func NewSynchronizer(provider Provider, self domain.User, onUpdate UpdateFunc) *Synchronizer {
	return &Synchronizer{
		provider: provider,
		self:     self,
		onUpdate: onUpdate,
		channels: make(map[domain.RoomID]Channel),
		table:    make(map[domain.RoomID]map[domain.UserID]domain.PresenceEntry),
	}
}

// SubscribeAll opens one broadcast channel per room id and registers the
// reconciliation handlers. Already-subscribed rooms are skipped, so repeated
// calls (e.g. after the channel list grows) are safe.
func (s *Synchronizer) SubscribeAll(ctx context.Context, roomIDs []domain.RoomID) {
	for _, roomID := range roomIDs {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if _, ok := s.channels[roomID]; ok {
			s.mu.Unlock()
			continue
		}
		ch := s.provider.Channel(roomID, string(s.self.ID))
		s.channels[roomID] = ch
		s.mu.Unlock()

		id := roomID
		h := Handlers{
			Sync:  func(snapshot []domain.PresenceEntry) { s.applySync(id, snapshot) },
			Join:  func(joined []domain.PresenceEntry) { s.applyJoin(id, joined) },
			Leave: func(left []domain.PresenceEntry) { s.applyLeave(id, left) },
		}
		if err := ch.Subscribe(ctx, h, func(st Status) {
			log.Debug().Str("module", "presence").Str("room", string(id)).Str("status", st.String()).Msg("channel status")
		}); err != nil {
			// Presence is a soft feature: log and drop the channel, the media
			// call must not be affected.
			log.Error().Err(err).Str("module", "presence").Str("room", string(id)).Msg("subscribe failed")
			s.mu.Lock()
			delete(s.channels, roomID)
			s.mu.Unlock()
		}
	}
}

// PublishSelf moves the local user's presence record to roomID, untracking the
// previous room first and awaiting that removal before tracking the new one.
// An empty roomID is a pure removal (used on disconnect).
func (s *Synchronizer) PublishSelf(ctx context.Context, roomID domain.RoomID) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	if s.selfRoom != "" && s.selfRoom != roomID {
		prev := s.channelFor(s.selfRoom)
		if prev != nil {
			if err := prev.Untrack(ctx); err != nil {
				log.Error().Err(err).Str("module", "presence").Str("room", string(s.selfRoom)).Msg("untrack failed")
			}
		}
		s.selfRoom = ""
	}

	if roomID == "" {
		return nil
	}
	if s.selfRoom == roomID {
		return nil
	}

	ch := s.channelFor(roomID)
	if ch == nil {
		// Room appeared after SubscribeAll; open its channel on demand.
		s.SubscribeAll(ctx, []domain.RoomID{roomID})
		if ch = s.channelFor(roomID); ch == nil {
			return errors.New("presence: no channel for room " + string(roomID))
		}
	}

	entry := domain.SelfEntry(s.self, time.Now().UTC())
	if err := ch.Track(ctx, entry); err != nil {
		return err
	}
	s.selfRoom = roomID
	log.Info().Str("module", "presence").Str("room", string(roomID)).Str("user", string(s.self.ID)).Msg("presence tracked")
	return nil
}

// UnsubscribeAll untracks the local record, tears down every channel, and
// blocks any further table mutation from late events.
func (s *Synchronizer) UnsubscribeAll(ctx context.Context) {
	// Awaits any in-flight untrack/track before releasing channels.
	s.pubMu.Lock()
	if s.selfRoom != "" {
		if ch := s.channelFor(s.selfRoom); ch != nil {
			if err := ch.Untrack(ctx); err != nil {
				log.Error().Err(err).Str("module", "presence").Str("room", string(s.selfRoom)).Msg("untrack on teardown")
			}
		}
		s.selfRoom = ""
	}
	s.pubMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	channels := s.channels
	s.channels = make(map[domain.RoomID]Channel)
	s.table = make(map[domain.RoomID]map[domain.UserID]domain.PresenceEntry)
	s.mu.Unlock()

	for roomID, ch := range channels {
		if err := ch.Unsubscribe(); err != nil {
			log.Error().Err(err).Str("module", "presence").Str("room", string(roomID)).Msg("unsubscribe failed")
		}
	}
}

// Snapshot returns a copy of one room's entry set.
func (s *Synchronizer) Snapshot(roomID domain.RoomID) []domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyEntries(s.table[roomID])
}

// Table returns a copy of the whole presence table.
func (s *Synchronizer) Table() map[domain.RoomID][]domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.RoomID][]domain.PresenceEntry, len(s.table))
	for roomID, set := range s.table {
		out[roomID] = copyEntries(set)
	}
	return out
}

// SelfRoom reports where the local record is currently tracked ("" if nowhere).
func (s *Synchronizer) SelfRoom() domain.RoomID {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.selfRoom
}

// applySync replaces the room's entry set wholesale with the authoritative
// snapshot. Duplicated user ids within a snapshot are last-write-wins.
func (s *Synchronizer) applySync(roomID domain.RoomID, snapshot []domain.PresenceEntry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	set := make(map[domain.UserID]domain.PresenceEntry, len(snapshot))
	for _, e := range snapshot {
		set[e.ID] = e
	}
	s.table[roomID] = set
	entries := copyEntries(set)
	s.mu.Unlock()

	s.notify(roomID, entries)
}

func (s *Synchronizer) applyJoin(roomID domain.RoomID, joined []domain.PresenceEntry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	set := s.table[roomID]
	if set == nil {
		set = make(map[domain.UserID]domain.PresenceEntry, len(joined))
		s.table[roomID] = set
	}
	for _, e := range joined {
		set[e.ID] = e
	}
	entries := copyEntries(set)
	s.mu.Unlock()

	s.notify(roomID, entries)
}

func (s *Synchronizer) applyLeave(roomID domain.RoomID, left []domain.PresenceEntry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	set := s.table[roomID]
	for _, e := range left {
		delete(set, e.ID)
	}
	entries := copyEntries(set)
	s.mu.Unlock()

	s.notify(roomID, entries)
}

func (s *Synchronizer) notify(roomID domain.RoomID, entries []domain.PresenceEntry) {
	if s.onUpdate != nil {
		s.onUpdate(roomID, entries)
	}
}

func (s *Synchronizer) channelFor(roomID domain.RoomID) Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[roomID]
}

func (s *Synchronizer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func copyEntries(set map[domain.UserID]domain.PresenceEntry) []domain.PresenceEntry {
	out := make([]domain.PresenceEntry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}
