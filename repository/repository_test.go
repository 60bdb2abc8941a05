package repository

import (
	"context"
	"testing"

	"imposterserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 全バックエンド共通のテスト
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	newRoom := func(t *testing.T, repo Repository, code string) *models.Room {
		room := &models.Room{
			Code:         code,
			HostUsername: "Alice",
			Settings:     models.DefaultGameSettings(),
			CurrentRound: 1,
			Phase:        models.PhaseWaiting,
		}
		require.NoError(t, repo.CreateRoom(ctx, room))
		return room
	}

	t.Run("CreateAndGetRoom", func(t *testing.T) {
		repo := newRepo(t)
		created := newRoom(t, repo, "ABC123")
		assert.NotZero(t, created.ID)

		room, err := repo.GetRoom(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, "Alice", room.HostUsername)
		assert.Equal(t, models.PhaseWaiting, room.Phase)
		assert.Equal(t, 60, room.Settings.AnswerTimeSeconds)
		assert.Nil(t, room.CurrentImposter)

		exists, err := repo.RoomExists(ctx, "ABC123")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("DuplicateRoomCode", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")
		err := repo.CreateRoom(ctx, &models.Room{Code: "ABC123", HostUsername: "Bob", CurrentRound: 1, Phase: models.PhaseWaiting})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("MissingRoom", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetRoom(ctx, "NOPE00")
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := repo.RoomExists(ctx, "NOPE00")
		require.NoError(t, err)
		assert.False(t, exists)

		err = repo.UpdateRoom(ctx, &models.Room{Code: "NOPE00"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.DeleteRoom(ctx, "NOPE00"), ErrNotFound)
	})

	t.Run("UpdateRoom", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")

		room, err := repo.GetRoom(ctx, "ABC123")
		require.NoError(t, err)
		question, imposter := "What is your favorite food?", "Bob"
		room.Phase = models.PhaseQuestion
		room.CurrentRound = 2
		room.CurrentQuestion = &question
		room.CurrentImposter = &imposter
		require.NoError(t, repo.UpdateRoom(ctx, room))

		room, err = repo.GetRoom(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseQuestion, room.Phase)
		assert.Equal(t, 2, room.CurrentRound)
		require.NotNil(t, room.CurrentImposter)
		assert.Equal(t, "Bob", *room.CurrentImposter)

		room.CurrentQuestion = nil
		room.CurrentImposter = nil
		require.NoError(t, repo.UpdateRoom(ctx, room))
		room, err = repo.GetRoom(ctx, "ABC123")
		require.NoError(t, err)
		assert.Nil(t, room.CurrentQuestion)
		assert.Nil(t, room.CurrentImposter)
	})

	t.Run("ListRooms", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "AAAAAA")
		newRoom(t, repo, "BBBBBB")
		rooms, err := repo.ListRooms(ctx)
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, "AAAAAA", rooms[0].Code)
		assert.Equal(t, "BBBBBB", rooms[1].Code)
	})

	t.Run("Players", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")

		for _, name := range []string{"Alice", "Bob", "Cara"} {
			require.NoError(t, repo.AddPlayer(ctx, &models.Player{
				RoomCode: "ABC123", Username: name, IsHost: name == "Alice", IsConnected: true,
			}))
		}
		err := repo.AddPlayer(ctx, &models.Player{RoomCode: "ABC123", Username: "Bob", IsConnected: true})
		assert.ErrorIs(t, err, ErrDuplicate)

		err = repo.AddPlayer(ctx, &models.Player{RoomCode: "NOPE00", Username: "Bob"})
		assert.ErrorIs(t, err, ErrNotFound)

		players, err := repo.ListPlayers(ctx, "ABC123")
		require.NoError(t, err)
		require.Len(t, players, 3)
		assert.Equal(t, []string{"Alice", "Bob", "Cara"}, []string{players[0].Username, players[1].Username, players[2].Username})
		assert.True(t, players[0].IsHost)

		bob, err := repo.GetPlayer(ctx, "ABC123", "Bob")
		require.NoError(t, err)
		bob.Score = 10
		bob.IsConnected = false
		require.NoError(t, repo.UpdatePlayer(ctx, bob))

		bob, err = repo.GetPlayer(ctx, "ABC123", "Bob")
		require.NoError(t, err)
		assert.Equal(t, 10, bob.Score)
		assert.False(t, bob.IsConnected)

		_, err = repo.GetPlayer(ctx, "ABC123", "Dave")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.UpdatePlayer(ctx, &models.Player{RoomCode: "ABC123", Username: "Dave"}), ErrNotFound)
	})

	t.Run("AnswersAreScopedByRound", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")

		require.NoError(t, repo.AddAnswer(ctx, &models.Answer{RoomCode: "ABC123", Round: 1, Player: "Alice", Text: "pizza"}))
		require.NoError(t, repo.AddAnswer(ctx, &models.Answer{RoomCode: "ABC123", Round: 1, Player: "Bob", Text: "sushi"}))
		require.NoError(t, repo.AddAnswer(ctx, &models.Answer{RoomCode: "ABC123", Round: 2, Player: "Alice", Text: "tacos"}))

		err := repo.AddAnswer(ctx, &models.Answer{RoomCode: "ABC123", Round: 1, Player: "Alice", Text: "again"})
		assert.ErrorIs(t, err, ErrDuplicate)

		answers, err := repo.ListAnswers(ctx, "ABC123", 1)
		require.NoError(t, err)
		require.Len(t, answers, 2)
		assert.Equal(t, "pizza", answers[0].Text)

		require.NoError(t, repo.ClearAnswers(ctx, "ABC123", 1))
		answers, err = repo.ListAnswers(ctx, "ABC123", 1)
		require.NoError(t, err)
		assert.Empty(t, answers)

		answers, err = repo.ListAnswers(ctx, "ABC123", 2)
		require.NoError(t, err)
		assert.Len(t, answers, 1)
	})

	t.Run("VotesAreScopedByRound", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")

		require.NoError(t, repo.AddVote(ctx, &models.Vote{RoomCode: "ABC123", Round: 1, Voter: "Alice", VotedFor: "Bob"}))
		require.NoError(t, repo.AddVote(ctx, &models.Vote{RoomCode: "ABC123", Round: 1, Voter: "Bob", VotedFor: models.NoVote}))
		err := repo.AddVote(ctx, &models.Vote{RoomCode: "ABC123", Round: 1, Voter: "Alice", VotedFor: "Cara"})
		assert.ErrorIs(t, err, ErrDuplicate)

		votes, err := repo.ListVotes(ctx, "ABC123", 1)
		require.NoError(t, err)
		require.Len(t, votes, 2)
		assert.Equal(t, "Bob", votes[0].VotedFor)

		require.NoError(t, repo.ClearVotes(ctx, "ABC123", 1))
		votes, err = repo.ListVotes(ctx, "ABC123", 1)
		require.NoError(t, err)
		assert.Empty(t, votes)
	})

	t.Run("Messages", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")

		for _, content := range []string{"one", "two", "three"} {
			require.NoError(t, repo.AddMessage(ctx, &models.Message{RoomCode: "ABC123", Author: "Alice", Content: content}))
		}
		err := repo.AddMessage(ctx, &models.Message{RoomCode: "NOPE00", Author: "Alice", Content: "lost"})
		assert.ErrorIs(t, err, ErrNotFound)

		messages, err := repo.ListMessages(ctx, "ABC123", 0)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "one", messages[0].Content)

		messages, err = repo.ListMessages(ctx, "ABC123", 2)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "two", messages[0].Content)
		assert.Equal(t, "three", messages[1].Content)

		require.NoError(t, repo.ClearMessages(ctx, "ABC123"))
		messages, err = repo.ListMessages(ctx, "ABC123", 0)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("DeleteRoomRemovesEverything", func(t *testing.T) {
		repo := newRepo(t)
		newRoom(t, repo, "ABC123")
		newRoom(t, repo, "XYZ789")
		require.NoError(t, repo.AddPlayer(ctx, &models.Player{RoomCode: "ABC123", Username: "Alice", IsHost: true, IsConnected: true}))
		require.NoError(t, repo.AddPlayer(ctx, &models.Player{RoomCode: "XYZ789", Username: "Alice", IsHost: true, IsConnected: true}))
		require.NoError(t, repo.AddAnswer(ctx, &models.Answer{RoomCode: "ABC123", Round: 1, Player: "Alice", Text: "pizza"}))
		require.NoError(t, repo.AddVote(ctx, &models.Vote{RoomCode: "ABC123", Round: 3, Voter: "Alice", VotedFor: "Bob"}))
		require.NoError(t, repo.AddMessage(ctx, &models.Message{RoomCode: "ABC123", Author: "Alice", Content: "hi"}))

		require.NoError(t, repo.DeleteRoom(ctx, "ABC123"))

		_, err := repo.GetRoom(ctx, "ABC123")
		assert.ErrorIs(t, err, ErrNotFound)
		players, err := repo.ListPlayers(ctx, "ABC123")
		require.NoError(t, err)
		assert.Empty(t, players)
		answers, err := repo.ListAnswers(ctx, "ABC123", 1)
		require.NoError(t, err)
		assert.Empty(t, answers)
		votes, err := repo.ListVotes(ctx, "ABC123", 3)
		require.NoError(t, err)
		assert.Empty(t, votes)
		messages, err := repo.ListMessages(ctx, "ABC123", 0)
		require.NoError(t, err)
		assert.Empty(t, messages)

		// 他のルームは残る
		players, err = repo.ListPlayers(ctx, "XYZ789")
		require.NoError(t, err)
		assert.Len(t, players, 1)
		rooms, err := repo.ListRooms(ctx)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, "XYZ789", rooms[0].Code)
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryTests(t, func(t *testing.T) Repository {
		return NewMemoryRepository()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	imposter := "Bob"
	require.NoError(t, repo.CreateRoom(ctx, &models.Room{Code: "ABC123", CurrentRound: 1, Phase: models.PhaseWaiting, CurrentImposter: &imposter}))

	room, err := repo.GetRoom(ctx, "ABC123")
	require.NoError(t, err)
	*room.CurrentImposter = "Mallory"
	room.Phase = models.PhaseFinished

	again, err := repo.GetRoom(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Bob", *again.CurrentImposter)
	assert.Equal(t, models.PhaseWaiting, again.Phase)
}
