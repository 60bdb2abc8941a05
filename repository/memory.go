package repository

import (
	"context"
	"sort"
	"sync"

	"imposterserver/models"
)

type roundKey struct {
	roomCode string
	round    int
}

// MemoryRepository はプロセス内のマップに保存する。デフォルトのストレージ
type MemoryRepository struct {
	mu       sync.RWMutex
	nextID   uint
	rooms    map[string]models.Room
	players  map[string][]models.Player
	answers  map[roundKey][]models.Answer
	votes    map[roundKey][]models.Vote
	messages map[string][]models.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:    make(map[string]models.Room),
		players:  make(map[string][]models.Player),
		answers:  make(map[roundKey][]models.Answer),
		votes:    make(map[roundKey][]models.Vote),
		messages: make(map[string][]models.Message),
	}
}

func (m *MemoryRepository) id() uint {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; ok {
		return ErrDuplicate
	}
	now := timeNow()
	room.ID = m.id()
	room.CreatedAt = now
	room.UpdatedAt = now
	m.rooms[room.Code] = copyRoom(*room)
	return nil
}

func (m *MemoryRepository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	r := copyRoom(room)
	return &r, nil
}

func (m *MemoryRepository) UpdateRoom(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; !ok {
		return ErrNotFound
	}
	room.UpdatedAt = timeNow()
	m.rooms[room.Code] = copyRoom(*room)
	return nil
}

func (m *MemoryRepository) DeleteRoom(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, code)
	delete(m.players, code)
	delete(m.messages, code)
	for k := range m.answers {
		if k.roomCode == code {
			delete(m.answers, k)
		}
	}
	for k := range m.votes {
		if k.roomCode == code {
			delete(m.votes, k)
		}
	}
	return nil
}

func (m *MemoryRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[code]
	return ok, nil
}

func (m *MemoryRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]models.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, copyRoom(room))
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (m *MemoryRepository) AddPlayer(ctx context.Context, player *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[player.RoomCode]; !ok {
		return ErrNotFound
	}
	for _, p := range m.players[player.RoomCode] {
		if p.Username == player.Username {
			return ErrDuplicate
		}
	}
	player.ID = m.id()
	if player.JoinedAt.IsZero() {
		player.JoinedAt = timeNow()
	}
	m.players[player.RoomCode] = append(m.players[player.RoomCode], *player)
	return nil
}

func (m *MemoryRepository) GetPlayer(ctx context.Context, roomCode, username string) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players[roomCode] {
		if p.Username == username {
			player := p
			return &player, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) ListPlayers(ctx context.Context, roomCode string) ([]models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Player{}, m.players[roomCode]...), nil
}

func (m *MemoryRepository) UpdatePlayer(ctx context.Context, player *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	players := m.players[player.RoomCode]
	for i := range players {
		if players[i].Username == player.Username {
			player.ID = players[i].ID
			players[i] = *player
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryRepository) AddAnswer(ctx context.Context, answer *models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := roundKey{answer.RoomCode, answer.Round}
	for _, a := range m.answers[key] {
		if a.Player == answer.Player {
			return ErrDuplicate
		}
	}
	answer.ID = m.id()
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = timeNow()
	}
	m.answers[key] = append(m.answers[key], *answer)
	return nil
}

func (m *MemoryRepository) ListAnswers(ctx context.Context, roomCode string, round int) ([]models.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Answer{}, m.answers[roundKey{roomCode, round}]...), nil
}

func (m *MemoryRepository) ClearAnswers(ctx context.Context, roomCode string, round int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.answers, roundKey{roomCode, round})
	return nil
}

func (m *MemoryRepository) AddVote(ctx context.Context, vote *models.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := roundKey{vote.RoomCode, vote.Round}
	for _, v := range m.votes[key] {
		if v.Voter == vote.Voter {
			return ErrDuplicate
		}
	}
	vote.ID = m.id()
	if vote.SubmittedAt.IsZero() {
		vote.SubmittedAt = timeNow()
	}
	m.votes[key] = append(m.votes[key], *vote)
	return nil
}

func (m *MemoryRepository) ListVotes(ctx context.Context, roomCode string, round int) ([]models.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Vote{}, m.votes[roundKey{roomCode, round}]...), nil
}

func (m *MemoryRepository) ClearVotes(ctx context.Context, roomCode string, round int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, roundKey{roomCode, round})
	return nil
}

func (m *MemoryRepository) AddMessage(ctx context.Context, message *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[message.RoomCode]; !ok {
		return ErrNotFound
	}
	message.ID = m.id()
	if message.SentAt.IsZero() {
		message.SentAt = timeNow()
	}
	m.messages[message.RoomCode] = append(m.messages[message.RoomCode], *message)
	return nil
}

func (m *MemoryRepository) ListMessages(ctx context.Context, roomCode string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.messages[roomCode]
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return append([]models.Message{}, messages...), nil
}

func (m *MemoryRepository) ClearMessages(ctx context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, roomCode)
	return nil
}

// ポインタフィールドを呼び出し側と共有しない
func copyRoom(room models.Room) models.Room {
	if room.CurrentQuestion != nil {
		q := *room.CurrentQuestion
		room.CurrentQuestion = &q
	}
	if room.CurrentImposter != nil {
		i := *room.CurrentImposter
		room.CurrentImposter = &i
	}
	return room
}
