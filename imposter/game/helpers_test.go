package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"imposterserver/imposter/protocol"
	"imposterserver/models"
	"imposterserver/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Scheduler ---

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) fire() {
	if t.stopped {
		return
	}
	t.fired = true
	t.f()
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

func (s *fakeScheduler) last() *fakeTimer {
	return s.timer(s.count() - 1)
}

// --- Notifier ---

type recordingNotifier struct {
	mu         sync.Mutex
	broadcasts []protocol.Envelope
	direct     map[string][]protocol.Envelope
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{direct: make(map[string][]protocol.Envelope)}
}

func (n *recordingNotifier) BroadcastToRoom(roomCode string, env protocol.Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, env)
}

func (n *recordingNotifier) SendToPlayer(roomCode, username string, env protocol.Envelope) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct[username] = append(n.direct[username], env)
	return true
}

// gameStates は broadcast された gameStateUpdate のうち phase が一致するもの
func (n *recordingNotifier) gameStates(t *testing.T, phase models.Phase) []json.RawMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []json.RawMessage
	for _, env := range n.broadcasts {
		if env.Type != protocol.GameStateUpdate {
			continue
		}
		var head struct {
			Phase models.Phase `json:"phase"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &head))
		if head.Phase == phase {
			out = append(out, env.Data)
		}
	}
	return out
}

func (n *recordingNotifier) lastDirect(t *testing.T, username string) protocol.Envelope {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	envs := n.direct[username]
	require.NotEmpty(t, envs, "no direct message for %s", username)
	return envs[len(envs)-1]
}

func (n *recordingNotifier) lastRoomUpdate(t *testing.T) protocol.RoomUpdateData {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.broadcasts) - 1; i >= 0; i-- {
		if n.broadcasts[i].Type == protocol.RoomUpdate {
			var data protocol.RoomUpdateData
			require.NoError(t, json.Unmarshal(n.broadcasts[i].Data, &data))
			return data
		}
	}
	t.Fatal("no roomUpdate broadcast")
	return protocol.RoomUpdateData{}
}

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Setup ---

type testRoom struct {
	manager  *Manager
	session  *Session
	repo     *repository.MemoryRepository
	sched    *fakeScheduler
	notifier *recordingNotifier
	clock    *fakeClock
}

func setupRoom(t *testing.T, host string, guests ...string) *testRoom {
	t.Helper()
	ctx := context.Background()
	tr := &testRoom{
		repo:     repository.NewMemoryRepository(),
		sched:    &fakeScheduler{},
		notifier: newRecordingNotifier(),
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	tr.manager = NewManager(tr.repo, tr.notifier, zap.NewNop(), Options{
		Scheduler:   tr.sched,
		NewRoomCode: func() string { return "ABC123" },
		Now:         tr.clock.Now,
	})

	s, err := tr.manager.CreateRoom(ctx, host)
	require.NoError(t, err)
	tr.session = s
	for _, g := range guests {
		_, err := tr.manager.JoinRoom(ctx, "ABC123", g)
		require.NoError(t, err)
	}
	return tr
}

func (tr *testRoom) room(t *testing.T) *models.Room {
	t.Helper()
	room, err := tr.repo.GetRoom(context.Background(), "ABC123")
	require.NoError(t, err)
	return room
}

func (tr *testRoom) player(t *testing.T, username string) *models.Player {
	t.Helper()
	p, err := tr.repo.GetPlayer(context.Background(), "ABC123", username)
	require.NoError(t, err)
	return p
}

func (tr *testRoom) imposter(t *testing.T) string {
	t.Helper()
	room := tr.room(t)
	require.NotNil(t, room.CurrentImposter)
	return *room.CurrentImposter
}

func (tr *testRoom) answerAll(t *testing.T, usernames ...string) {
	t.Helper()
	for _, u := range usernames {
		require.NoError(t, tr.session.SubmitAnswer(context.Background(), u, "answer from "+u))
	}
}

func decode(t *testing.T, data json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

func others(all []string, except string) []string {
	var out []string
	for _, u := range all {
		if u != except {
			out = append(out, u)
		}
	}
	return out
}
