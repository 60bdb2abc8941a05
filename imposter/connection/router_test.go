package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"imposterserver/imposter/game"
	"imposterserver/imposter/protocol"
	"imposterserver/models"
	"imposterserver/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type routerFixture struct {
	router   *Router
	registry *Registry
	manager  *game.Manager
	repo     *repository.MemoryRepository
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()
	logger := zap.NewNop()
	repo := repository.NewMemoryRepository()
	registry := NewRegistry(logger)
	manager := game.NewManager(repo, registry, logger, game.Options{
		NewRoomCode: func() string { return "ABC123" },
	})
	return &routerFixture{
		router:   NewRouter(registry, manager, logger),
		registry: registry,
		manager:  manager,
		repo:     repo,
	}
}

func (f *routerFixture) connect(t *testing.T) *Client {
	t.Helper()
	c := newTestClient(t)
	f.registry.Register(c)
	return c
}

func (f *routerFixture) send(c *Client, msgType string, data interface{}) {
	raw := []byte(fmt.Sprintf(`{"type":%q}`, msgType))
	if data != nil {
		payload, _ := json.Marshal(data)
		raw = []byte(fmt.Sprintf(`{"type":%q,"data":%s}`, msgType, payload))
	}
	f.router.HandleMessage(context.Background(), c, raw)
}

func (f *routerFixture) join(t *testing.T, username string, host bool) *Client {
	t.Helper()
	c := f.connect(t)
	f.send(c, "joinRoom", protocol.JoinRoomData{RoomCode: "ABC123", Username: username, IsHost: host})
	_, ok := f.registry.Identity(c)
	require.True(t, ok, "%s should have joined", username)
	return c
}

func errorMessages(t *testing.T, envs []protocol.Envelope) []string {
	var msgs []string
	for _, env := range ofType(envs, protocol.Error) {
		var data protocol.ErrorData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		msgs = append(msgs, data.Message)
	}
	return msgs
}

func TestRouter_MalformedMessage(t *testing.T) {
	f := setupRouter(t)
	c := f.connect(t)
	other := f.connect(t)

	f.router.HandleMessage(context.Background(), c, []byte(`{not json`))
	f.router.HandleMessage(context.Background(), c, []byte(`{"type":"selfDestruct"}`))

	assert.Equal(t, []string{"Invalid message format", "Invalid message format"}, errorMessages(t, drain(t, c)))
	assert.Empty(t, drain(t, other))
}

func TestRouter_HostJoinCreatesRoom(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)

	envs := drain(t, alice)
	require.Len(t, envs, 2)
	assert.Equal(t, protocol.RoomUpdate, envs[0].Type)
	assert.JSONEq(t, `{"roomCode":"ABC123"}`, string(envs[0].Data))

	var state protocol.RoomUpdateData
	require.NoError(t, json.Unmarshal(envs[1].Data, &state))
	assert.Equal(t, "ABC123", state.Room.Code)
	assert.Equal(t, "Alice", state.Room.HostUsername)
	require.Len(t, state.Players, 1)
	assert.True(t, state.Players[0].IsHost)
}

func TestRouter_GuestJoinErrors(t *testing.T) {
	f := setupRouter(t)
	f.join(t, "Alice", true)

	lost := f.connect(t)
	f.send(lost, "joinRoom", protocol.JoinRoomData{RoomCode: "ZZZZZZ", Username: "Bob"})
	assert.Equal(t, []string{"Room not found"}, errorMessages(t, drain(t, lost)))
	_, ok := f.registry.Identity(lost)
	assert.False(t, ok)

	copycat := f.connect(t)
	f.send(copycat, "joinRoom", protocol.JoinRoomData{RoomCode: "ABC123", Username: "Alice"})
	assert.Equal(t, []string{"Username already taken"}, errorMessages(t, drain(t, copycat)))
}

func TestRouter_GuestJoinBroadcastsRoomState(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)
	drain(t, alice)

	bob := f.join(t, "Bob", false)
	for _, c := range []*Client{alice, bob} {
		updates := ofType(drain(t, c), protocol.RoomUpdate)
		require.Len(t, updates, 1)
		var state protocol.RoomUpdateData
		require.NoError(t, json.Unmarshal(updates[0].Data, &state))
		assert.Len(t, state.Players, 2)
	}
}

func TestRouter_IntentsBeforeJoinAreDropped(t *testing.T) {
	f := setupRouter(t)
	c := f.connect(t)

	f.send(c, "startGame", nil)
	f.send(c, "sendAnswer", protocol.SendAnswerData{Answer: "pizza"})
	assert.Empty(t, drain(t, c))
}

func TestRouter_SecondJoinIsDropped(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)
	drain(t, alice)

	f.send(alice, "joinRoom", protocol.JoinRoomData{Username: "Alice2", IsHost: true})
	assert.Empty(t, drain(t, alice))
	assert.Equal(t, 1, f.manager.RoomCount())
}

func TestRouter_StartGame(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)
	bob := f.join(t, "Bob", false)

	f.send(alice, "startGame", nil)
	assert.Equal(t, []string{"Need at least 3 players to start"}, errorMessages(t, drain(t, alice)))

	cara := f.join(t, "Cara", false)
	f.send(bob, "startGame", nil)
	assert.Equal(t, []string{"Only the host can do that"}, errorMessages(t, drain(t, bob)))

	drain(t, alice)
	drain(t, cara)
	f.send(alice, "startGame", nil)
	for _, c := range []*Client{alice, bob, cara} {
		states := ofType(drain(t, c), protocol.GameStateUpdate)
		require.Len(t, states, 1)
		var q protocol.QuestionPhaseData
		require.NoError(t, json.Unmarshal(states[0].Data, &q))
		assert.Equal(t, models.PhaseQuestion, q.Phase)
		assert.NotEmpty(t, q.Question)
	}

	// 質問フェーズでの投票は黙って無視
	f.send(bob, "sendVote", protocol.SendVoteData{VotedFor: "Alice"})
	assert.Empty(t, errorMessages(t, drain(t, bob)))
}

func TestRouter_IllTypedPayload(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)
	drain(t, alice)

	f.router.HandleMessage(context.Background(), alice, []byte(`{"type":"sendMessage","data":{"content":42}}`))
	assert.Equal(t, []string{"Invalid message format"}, errorMessages(t, drain(t, alice)))
}

func TestRouter_ChatAndSettings(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)
	bob := f.join(t, "Bob", false)
	drain(t, alice)
	drain(t, bob)

	f.send(bob, "sendMessage", protocol.SendMessageData{Content: "hi all"})
	updates := ofType(drain(t, alice), protocol.RoomUpdate)
	require.Len(t, updates, 1)
	var state protocol.RoomUpdateData
	require.NoError(t, json.Unmarshal(updates[0].Data, &state))
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, "Bob", last.Author)
	assert.Equal(t, "hi all", last.Content)

	thirty := 30
	f.send(bob, "updateSettings", protocol.UpdateSettingsData{AnswerTime: &thirty})
	assert.Equal(t, []string{"Only the host can do that"}, errorMessages(t, drain(t, bob)))

	f.send(alice, "updateSettings", protocol.UpdateSettingsData{AnswerTime: &thirty})
	room, err := f.repo.GetRoom(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 30, room.Settings.AnswerTimeSeconds)
}

func TestRouter_Disconnect(t *testing.T) {
	f := setupRouter(t)
	alice := f.join(t, "Alice", true)
	bob := f.join(t, "Bob", false)
	drain(t, alice)

	f.router.HandleDisconnect(context.Background(), bob)

	_, ok := f.registry.Identity(bob)
	assert.False(t, ok)
	player, err := f.repo.GetPlayer(context.Background(), "ABC123", "Bob")
	require.NoError(t, err)
	assert.False(t, player.IsConnected)

	updates := ofType(drain(t, alice), protocol.RoomUpdate)
	require.Len(t, updates, 1)
	var state protocol.RoomUpdateData
	require.NoError(t, json.Unmarshal(updates[0].Data, &state))
	require.Len(t, state.Players, 2)
	assert.False(t, state.Players[1].IsConnected)
}

func TestRouter_RateLimitedMessagesAreDropped(t *testing.T) {
	f := setupRouter(t)
	c := NewClient(&MockConn{}, rate.NewLimiter(0, 1), zap.NewNop())
	f.registry.Register(c)

	f.router.HandleMessage(context.Background(), c, []byte(`{bad`))
	f.router.HandleMessage(context.Background(), c, []byte(`{bad`))
	assert.Len(t, drain(t, c), 1)
}
