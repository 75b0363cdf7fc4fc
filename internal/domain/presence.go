package domain

import "time"

// PresenceEntry is one user's announced presence in one voice room.
// JSON tags match the realtime channel payload.
type PresenceEntry struct {
	ID       UserID    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// SelfEntry builds the record published for the local user.
func SelfEntry(u User, now time.Time) PresenceEntry {
	return PresenceEntry{
		ID:       u.ID,
		Name:     string(u.ID),
		JoinedAt: now,
	}
}
