package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"imposterserver/models"

	"github.com/go-redis/redis/v8"
)

const (
	roomsSetKey = "imposter:rooms"
	sequenceKey = "imposter:seq"
)

func roomKey(code string) string     { return "imposter:room:" + code }
func playersKey(code string) string  { return roomKey(code) + ":players" }
func messagesKey(code string) string { return roomKey(code) + ":messages" }

func answersKey(code string, round int) string {
	return fmt.Sprintf("%s:answers:%d", roomKey(code), round)
}

func votesKey(code string, round int) string {
	return fmt.Sprintf("%s:votes:%d", roomKey(code), round)
}

// RedisRepository はJSONにしたレコードをRedisに保存する
// プレイヤー・回答・投票はハッシュ、チャットはリスト
type RedisRepository struct {
	rdb *redis.Client
}

func NewRedisRepository(rdb *redis.Client) *RedisRepository {
	return &RedisRepository{rdb: rdb}
}

func (r *RedisRepository) nextID(ctx context.Context) (uint, error) {
	id, err := r.rdb.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (r *RedisRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	now := timeNow()
	room.ID = id
	room.CreatedAt = now
	room.UpdatedAt = now
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, roomKey(room.Code), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return r.rdb.SAdd(ctx, roomsSetKey, room.Code).Err()
}

func (r *RedisRepository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	data, err := r.rdb.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &room, nil
}

func (r *RedisRepository) UpdateRoom(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = timeNow()
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetXX(ctx, roomKey(room.Code), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRepository) DeleteRoom(ctx context.Context, code string) error {
	// ラウンドごとのキーはパターンで探す
	var keys []string
	iter := r.rdb.Scan(ctx, 0, roomKey(code)+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	deleted, err := r.rdb.Del(ctx, roomKey(code)).Result()
	if err != nil {
		return err
	}
	if err := r.rdb.SRem(ctx, roomsSetKey, code).Err(); err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	n, err := r.rdb.Exists(ctx, roomKey(code)).Result()
	return n > 0, err
}

func (r *RedisRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	codes, err := r.rdb.SMembers(ctx, roomsSetKey).Result()
	if err != nil {
		return nil, err
	}
	rooms := make([]models.Room, 0, len(codes))
	for _, code := range codes {
		room, err := r.GetRoom(ctx, code)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (r *RedisRepository) requireRoom(ctx context.Context, code string) error {
	exists, err := r.RoomExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRepository) AddPlayer(ctx context.Context, player *models.Player) error {
	if err := r.requireRoom(ctx, player.RoomCode); err != nil {
		return err
	}
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	player.ID = id
	if player.JoinedAt.IsZero() {
		player.JoinedAt = timeNow()
	}
	return r.setNX(ctx, playersKey(player.RoomCode), player.Username, player)
}

func (r *RedisRepository) GetPlayer(ctx context.Context, roomCode, username string) (*models.Player, error) {
	data, err := r.rdb.HGet(ctx, playersKey(roomCode), username).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var player models.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", username, err)
	}
	return &player, nil
}

func (r *RedisRepository) ListPlayers(ctx context.Context, roomCode string) ([]models.Player, error) {
	var players []models.Player
	if err := r.hashValues(ctx, playersKey(roomCode), func(data []byte) error {
		var p models.Player
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		players = append(players, p)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

func (r *RedisRepository) UpdatePlayer(ctx context.Context, player *models.Player) error {
	existing, err := r.GetPlayer(ctx, player.RoomCode, player.Username)
	if err != nil {
		return err
	}
	player.ID = existing.ID
	player.JoinedAt = existing.JoinedAt
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, playersKey(player.RoomCode), player.Username, data).Err()
}

func (r *RedisRepository) AddAnswer(ctx context.Context, answer *models.Answer) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	answer.ID = id
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = timeNow()
	}
	return r.setNX(ctx, answersKey(answer.RoomCode, answer.Round), answer.Player, answer)
}

func (r *RedisRepository) ListAnswers(ctx context.Context, roomCode string, round int) ([]models.Answer, error) {
	var answers []models.Answer
	if err := r.hashValues(ctx, answersKey(roomCode, round), func(data []byte) error {
		var a models.Answer
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		answers = append(answers, a)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	return answers, nil
}

func (r *RedisRepository) ClearAnswers(ctx context.Context, roomCode string, round int) error {
	return r.rdb.Del(ctx, answersKey(roomCode, round)).Err()
}

func (r *RedisRepository) AddVote(ctx context.Context, vote *models.Vote) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	vote.ID = id
	if vote.SubmittedAt.IsZero() {
		vote.SubmittedAt = timeNow()
	}
	return r.setNX(ctx, votesKey(vote.RoomCode, vote.Round), vote.Voter, vote)
}

func (r *RedisRepository) ListVotes(ctx context.Context, roomCode string, round int) ([]models.Vote, error) {
	var votes []models.Vote
	if err := r.hashValues(ctx, votesKey(roomCode, round), func(data []byte) error {
		var v models.Vote
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		votes = append(votes, v)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].ID < votes[j].ID })
	return votes, nil
}

func (r *RedisRepository) ClearVotes(ctx context.Context, roomCode string, round int) error {
	return r.rdb.Del(ctx, votesKey(roomCode, round)).Err()
}

func (r *RedisRepository) AddMessage(ctx context.Context, message *models.Message) error {
	if err := r.requireRoom(ctx, message.RoomCode); err != nil {
		return err
	}
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	message.ID = id
	if message.SentAt.IsZero() {
		message.SentAt = timeNow()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, messagesKey(message.RoomCode), data).Err()
}

func (r *RedisRepository) ListMessages(ctx context.Context, roomCode string, limit int) ([]models.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	values, err := r.rdb.LRange(ctx, messagesKey(roomCode), start, -1).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(values))
	for _, v := range values {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *RedisRepository) ClearMessages(ctx context.Context, roomCode string) error {
	return r.rdb.Del(ctx, messagesKey(roomCode)).Err()
}

// ハッシュのフィールドが既にあれば ErrDuplicate
func (r *RedisRepository) setNX(ctx context.Context, key, field string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ok, err := r.rdb.HSetNX(ctx, key, field, data).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (r *RedisRepository) hashValues(ctx context.Context, key string, decode func([]byte) error) error {
	values, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	for _, v := range values {
		if err := decode([]byte(v)); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return nil
}
