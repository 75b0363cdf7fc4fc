// Package session owns the single active media-room connection: join/leave,
// connection state, and the handoff between rooms.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/domain"
)

var (
	// ErrJoinInProgress is returned for a Join issued while another one is
	// still connecting. Callers re-issue the join once the state settles.
	ErrJoinInProgress = errors.New("session: join already in progress")
	// ErrSuperseded is returned when a connect attempt finished after a newer
	// join or leave replaced it.
	ErrSuperseded = errors.New("session: join superseded")
)

// Events are the media SDK callbacks the manager subscribes to for the
// lifetime of each connection. A new connection gets a fresh set; stale ones
// are ignored via the manager's epoch.
type Events struct {
	OnConnected               func()
	OnDisconnected            func(reason string)
	OnEncryptionError         func(err error)
	OnMediaDevicesError       func(err error)
	OnParticipantDisconnected func(identity string)
}

// MediaRoom is the live connection handle.
type MediaRoom interface {
	Disconnect()
	EnableMicrophone(ctx context.Context) error
	EnableCamera(ctx context.Context) error
}

// Connector establishes media connections. The production implementation
// wraps the LiveKit SDK; tests use a fake.
type Connector interface {
	Connect(ctx context.Context, serverURL, token string, ev Events) (MediaRoom, error)
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	RoomName   domain.RoomName
	Connecting bool
	Connected  bool
	LastError  string
}

type ListenerFunc func(Snapshot)

// Manager serializes access to the one active room connection.
//
// State machine: Idle -> Connecting -> Connected -> Idle, with
// Connecting -> Idle on failure. Join during Connecting is rejected; the
// epoch counter discards completions and events of superseded attempts.
type Manager struct {
	details   DetailsFetcher
	connector Connector
	user      domain.User

	mu         sync.Mutex
	conn       MediaRoom
	roomName   domain.RoomName
	connecting bool
	connected  bool
	lastError  string
	epoch      uint64
	listeners  []ListenerFunc
}

func NewManager(details DetailsFetcher, connector Connector, user domain.User) *Manager {
	return &Manager{
		details:   details,
		connector: connector,
		user:      user,
	}
}

// OnChange registers a listener for state snapshots. Listeners are invoked
// outside the manager's lock, in registration order.
func (m *Manager) OnChange(fn ListenerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Join connects to roomName, tearing down any previous connection first.
// Re-joining the currently connected room is a fast no-op. The microphone is
// enabled best-effort after connecting; the camera stays off.
func (m *Manager) Join(ctx context.Context, roomName domain.RoomName) error {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return ErrJoinInProgress
	}
	if m.connected && m.roomName == roomName {
		m.mu.Unlock()
		log.Debug().Str("module", "session").Str("room", string(roomName)).Msg("already joined")
		return nil
	}
	prev := m.conn
	m.conn = nil
	m.epoch++
	epoch := m.epoch
	m.connecting = true
	m.connected = false
	m.roomName = ""
	m.lastError = ""
	m.mu.Unlock()
	m.publish()

	// The prior connection must be fully torn down before new connection
	// details are requested.
	if prev != nil {
		prev.Disconnect()
	}

	det, err := m.details.Fetch(ctx, roomName, m.user.ID)
	if err != nil {
		return m.fail(epoch, fmt.Errorf("connection details: %w", err))
	}

	conn, err := m.connector.Connect(ctx, det.ServerURL, det.ParticipantToken, Events{
		OnConnected:    func() { m.handleConnected(epoch, roomName) },
		OnDisconnected: func(reason string) { m.handleDisconnected(epoch, reason) },
		OnEncryptionError: func(err error) {
			m.handleEncryptionError(epoch, err)
		},
		OnMediaDevicesError: func(err error) {
			log.Warn().Err(err).Str("module", "session").Msg("media devices error")
		},
		OnParticipantDisconnected: func(identity string) {
			log.Debug().Str("module", "session").Str("participant", identity).Msg("participant disconnected")
		},
	})
	if err != nil {
		return m.fail(epoch, fmt.Errorf("connect: %w", err))
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		conn.Disconnect()
		return ErrSuperseded
	}
	m.conn = conn
	m.mu.Unlock()

	if err := conn.EnableMicrophone(ctx); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("room", string(roomName)).Msg("failed to enable microphone")
	}

	log.Info().Str("module", "session").Str("room", string(roomName)).Str("user", string(m.user.ID)).Msg("joined room")
	return nil
}

// Leave disconnects the active connection and clears state synchronously.
// No-op when idle.
func (m *Manager) Leave() {
	m.mu.Lock()
	conn := m.conn
	if conn == nil && !m.connecting {
		m.mu.Unlock()
		return
	}
	m.epoch++ // any in-flight completion or SDK event is now stale
	m.conn = nil
	m.roomName = ""
	m.connecting = false
	m.connected = false
	m.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	log.Info().Str("module", "session").Msg("left room")
	m.publish()
}

// EnableCamera turns the camera on for the active connection. Unlike the
// microphone this is never done implicitly.
func (m *Manager) EnableCamera(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.New("session: not connected")
	}
	return conn.EnableCamera(ctx)
}

func (m *Manager) handleConnected(epoch uint64, roomName domain.RoomName) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.connecting = false
	m.connected = true
	m.roomName = roomName
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) handleDisconnected(epoch uint64, reason string) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++
	m.conn = nil
	m.roomName = ""
	m.connecting = false
	m.connected = false
	m.mu.Unlock()

	log.Info().Str("module", "session").Str("reason", reason).Msg("disconnected by server")
	m.publish()
}

// handleEncryptionError tears the session down: without working encryption
// the call is unusable.
func (m *Manager) handleEncryptionError(epoch uint64, err error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++
	conn := m.conn
	m.conn = nil
	m.roomName = ""
	m.connecting = false
	m.connected = false
	m.lastError = fmt.Sprintf("encryption error: %v", err)
	m.mu.Unlock()

	log.Error().Err(err).Str("module", "session").Msg("encryption error, leaving room")
	if conn != nil {
		conn.Disconnect()
	}
	m.publish()
}

func (m *Manager) fail(epoch uint64, err error) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.conn = nil
	m.roomName = ""
	m.connecting = false
	m.connected = false
	m.lastError = err.Error()
	m.mu.Unlock()

	log.Error().Err(err).Str("module", "session").Msg("join failed")
	m.publish()
	return err
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		RoomName:   m.roomName,
		Connecting: m.connecting,
		Connected:  m.connected,
		LastError:  m.lastError,
	}
}

func (m *Manager) publish() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	listeners := make([]ListenerFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
