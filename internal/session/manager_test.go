package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/voicedeck/voicedeck/internal/domain"
)

type fakeDetails struct {
	mu      sync.Mutex
	fetches []domain.RoomName
	err     error
}

func (f *fakeDetails) Fetch(ctx context.Context, roomName domain.RoomName, participant domain.UserID) (*ConnectionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.fetches = append(f.fetches, roomName)
	return &ConnectionDetails{ServerURL: "ws://media", ParticipantToken: "token-" + string(roomName)}, nil
}

func (f *fakeDetails) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

type fakeRoom struct {
	mu          sync.Mutex
	disconnects int
	micEnabled  int
	cameraOn    int
}

func (r *fakeRoom) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
}

func (r *fakeRoom) EnableMicrophone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.micEnabled++
	return nil
}

func (r *fakeRoom) EnableCamera(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameraOn++
	return nil
}

func (r *fakeRoom) disconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

// fakeConnector hands out fakeRooms and remembers the Events of the latest
// connection so tests can fire SDK callbacks.
type fakeConnector struct {
	mu       sync.Mutex
	rooms    []*fakeRoom
	events   []Events
	err      error
	deferCon bool // do not fire OnConnected from Connect
}

func (c *fakeConnector) Connect(ctx context.Context, serverURL, token string, ev Events) (MediaRoom, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	room := &fakeRoom{}
	c.rooms = append(c.rooms, room)
	c.events = append(c.events, ev)
	deferCon := c.deferCon
	c.mu.Unlock()

	if !deferCon && ev.OnConnected != nil {
		ev.OnConnected()
	}
	return room, nil
}

func (c *fakeConnector) lastEvents() Events {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func (c *fakeConnector) room(i int) *fakeRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[i]
}

func (c *fakeConnector) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

func newTestManager() (*Manager, *fakeDetails, *fakeConnector) {
	details := &fakeDetails{}
	connector := &fakeConnector{}
	m := NewManager(details, connector, domain.User{ID: "me"})
	return m, details, connector
}

func TestJoinConnectsAndEnablesMic(t *testing.T) {
	m, _, connector := newTestManager()

	if err := m.Join(context.Background(), "general-voice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	snap := m.Snapshot()
	if !snap.Connected || snap.Connecting {
		t.Errorf("snapshot = %+v, want connected", snap)
	}
	if snap.RoomName != "general-voice" {
		t.Errorf("room = %q, want general-voice", snap.RoomName)
	}
	if got := connector.room(0).micEnabled; got != 1 {
		t.Errorf("mic enabled %d times, want 1", got)
	}
	if got := connector.room(0).cameraOn; got != 0 {
		t.Errorf("camera enabled %d times, want 0 (off by default)", got)
	}
}

func TestJoinSameRoomIsIdempotent(t *testing.T) {
	m, details, connector := newTestManager()
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("second join: %v", err)
	}

	if got := connector.connects(); got != 1 {
		t.Errorf("connected %d times, want 1", got)
	}
	if got := details.count(); got != 1 {
		t.Errorf("fetched details %d times, want 1", got)
	}
}

func TestJoinSwitchDisconnectsPreviousFirst(t *testing.T) {
	m, _, connector := newTestManager()
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	first := connector.room(0)

	if err := m.Join(ctx, "b"); err != nil {
		t.Fatalf("join b: %v", err)
	}

	if got := first.disconnectCount(); got != 1 {
		t.Errorf("previous connection disconnected %d times, want exactly 1", got)
	}
	if snap := m.Snapshot(); snap.RoomName != "b" || !snap.Connected {
		t.Errorf("snapshot = %+v, want connected to b", snap)
	}
	if got := connector.connects(); got != 2 {
		t.Errorf("connected %d times, want 2", got)
	}
}

func TestJoinWhileConnectingIsRejected(t *testing.T) {
	m, _, connector := newTestManager()
	connector.deferCon = true
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	// OnConnected has not fired: still Connecting.
	if snap := m.Snapshot(); !snap.Connecting {
		t.Fatalf("snapshot = %+v, want connecting", snap)
	}

	if err := m.Join(ctx, "b"); !errors.Is(err, ErrJoinInProgress) {
		t.Errorf("concurrent join = %v, want ErrJoinInProgress", err)
	}

	connector.lastEvents().OnConnected()
	if snap := m.Snapshot(); !snap.Connected || snap.RoomName != "a" {
		t.Errorf("snapshot = %+v, want connected to a", snap)
	}
}

func TestDetailsFailureSetsLastError(t *testing.T) {
	m, details, connector := newTestManager()
	details.err = errors.New("boom")

	err := m.Join(context.Background(), "a")
	if err == nil {
		t.Fatal("join succeeded, want error")
	}

	snap := m.Snapshot()
	if snap.Connected || snap.Connecting {
		t.Errorf("snapshot = %+v, want idle", snap)
	}
	if snap.LastError == "" {
		t.Error("LastError empty, want failure message")
	}
	if got := connector.connects(); got != 0 {
		t.Errorf("connected %d times, want 0", got)
	}
}

func TestConnectFailureSetsLastError(t *testing.T) {
	m, _, connector := newTestManager()
	connector.err = errors.New("media down")

	if err := m.Join(context.Background(), "a"); err == nil {
		t.Fatal("join succeeded, want error")
	}
	snap := m.Snapshot()
	if snap.Connected || snap.Connecting || snap.LastError == "" {
		t.Errorf("snapshot = %+v, want idle with error", snap)
	}
}

func TestLeaveClearsStateSynchronously(t *testing.T) {
	m, _, connector := newTestManager()
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	m.Leave()

	if snap := m.Snapshot(); snap.Connected || snap.RoomName != "" {
		t.Errorf("snapshot = %+v, want cleared", snap)
	}
	if got := connector.room(0).disconnectCount(); got != 1 {
		t.Errorf("disconnected %d times, want 1", got)
	}

	// Leave when idle is a no-op.
	m.Leave()
	if got := connector.room(0).disconnectCount(); got != 1 {
		t.Errorf("idle leave disconnected again: %d", got)
	}
}

func TestServerDisconnectClearsState(t *testing.T) {
	m, _, connector := newTestManager()
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	connector.lastEvents().OnDisconnected("server shutdown")

	if snap := m.Snapshot(); snap.Connected || snap.RoomName != "" {
		t.Errorf("snapshot = %+v, want cleared after server disconnect", snap)
	}
}

func TestStaleEventsAreIgnored(t *testing.T) {
	m, _, connector := newTestManager()
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	stale := connector.lastEvents()

	if err := m.Join(ctx, "b"); err != nil {
		t.Fatalf("join b: %v", err)
	}

	// Events of the superseded connection must not touch fresh state.
	stale.OnDisconnected("late teardown event")
	if snap := m.Snapshot(); !snap.Connected || snap.RoomName != "b" {
		t.Errorf("snapshot = %+v, stale event overwrote fresh state", snap)
	}
}

func TestEncryptionErrorTearsDown(t *testing.T) {
	m, _, connector := newTestManager()
	ctx := context.Background()

	if err := m.Join(ctx, "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	connector.lastEvents().OnEncryptionError(errors.New("bad key"))

	snap := m.Snapshot()
	if snap.Connected {
		t.Errorf("still connected after encryption error: %+v", snap)
	}
	if snap.LastError == "" {
		t.Error("LastError empty after encryption error")
	}
	if got := connector.room(0).disconnectCount(); got != 1 {
		t.Errorf("disconnected %d times, want 1", got)
	}
}

func TestListenersSeeTransitions(t *testing.T) {
	m, _, connector := newTestManager()
	connector.deferCon = true

	var mu sync.Mutex
	var states []Snapshot
	m.OnChange(func(s Snapshot) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := m.Join(context.Background(), "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	connector.lastEvents().OnConnected()

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 {
		t.Fatalf("got %d transitions, want at least connecting+connected", len(states))
	}
	if !states[0].Connecting {
		t.Errorf("first transition %+v, want connecting", states[0])
	}
	last := states[len(states)-1]
	if !last.Connected || last.RoomName != "a" {
		t.Errorf("last transition %+v, want connected to a", last)
	}
}
