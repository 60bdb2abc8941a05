package repository

import (
	"context"
	"errors"

	"imposterserver/models"

	"gorm.io/gorm"
)

// GormRepository は PostgreSQL（テストでは SQLite）に保存する
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// gormのエラーをリポジトリのエラーに変換
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func (g *GormRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("code = ?", room.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return translate(tx.Create(room).Error)
	})
}

func (g *GormRepository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	if err := g.db.WithContext(ctx).Where("code = ?", code).First(&room).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (g *GormRepository) UpdateRoom(ctx context.Context, room *models.Room) error {
	db := g.db.WithContext(ctx)
	if room.ID == 0 {
		existing, err := g.GetRoom(ctx, room.Code)
		if err != nil {
			return err
		}
		room.ID = existing.ID
	}
	// ゼロ値（nilの質問など）も保存するため全カラムを更新
	result := db.Model(room).Select("*").Omit("id", "code", "created_at").Updates(room)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormRepository) DeleteRoom(ctx context.Context, code string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&models.Answer{}, &models.Vote{}, &models.Message{}, &models.Player{}} {
			if err := tx.Where("room_code = ?", code).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Where("code = ?", code).Delete(&models.Room{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (g *GormRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Room{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (g *GormRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := g.db.WithContext(ctx).Order("id").Find(&rooms).Error
	return rooms, err
}

func (g *GormRepository) AddPlayer(ctx context.Context, player *models.Player) error {
	if player.JoinedAt.IsZero() {
		player.JoinedAt = timeNow()
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("code = ?", player.RoomCode).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&models.Player{}).
			Where("room_code = ? AND username = ?", player.RoomCode, player.Username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return translate(tx.Create(player).Error)
	})
}

func (g *GormRepository) GetPlayer(ctx context.Context, roomCode, username string) (*models.Player, error) {
	var player models.Player
	err := g.db.WithContext(ctx).
		Where("room_code = ? AND username = ?", roomCode, username).
		First(&player).Error
	if err != nil {
		return nil, translate(err)
	}
	return &player, nil
}

func (g *GormRepository) ListPlayers(ctx context.Context, roomCode string) ([]models.Player, error) {
	var players []models.Player
	err := g.db.WithContext(ctx).Where("room_code = ?", roomCode).Order("id").Find(&players).Error
	return players, err
}

func (g *GormRepository) UpdatePlayer(ctx context.Context, player *models.Player) error {
	existing, err := g.GetPlayer(ctx, player.RoomCode, player.Username)
	if err != nil {
		return err
	}
	player.ID = existing.ID
	// IsConnected=false を保存するため Select("*") を使う
	return translate(g.db.WithContext(ctx).Model(player).
		Select("*").Omit("id", "room_code", "username", "joined_at").
		Updates(player).Error)
}

func (g *GormRepository) AddAnswer(ctx context.Context, answer *models.Answer) error {
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = timeNow()
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Answer{}).
			Where("room_code = ? AND round = ? AND player = ?", answer.RoomCode, answer.Round, answer.Player).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return translate(tx.Create(answer).Error)
	})
}

func (g *GormRepository) ListAnswers(ctx context.Context, roomCode string, round int) ([]models.Answer, error) {
	var answers []models.Answer
	err := g.db.WithContext(ctx).
		Where("room_code = ? AND round = ?", roomCode, round).
		Order("id").Find(&answers).Error
	return answers, err
}

func (g *GormRepository) ClearAnswers(ctx context.Context, roomCode string, round int) error {
	return g.db.WithContext(ctx).
		Where("room_code = ? AND round = ?", roomCode, round).
		Delete(&models.Answer{}).Error
}

func (g *GormRepository) AddVote(ctx context.Context, vote *models.Vote) error {
	if vote.SubmittedAt.IsZero() {
		vote.SubmittedAt = timeNow()
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Vote{}).
			Where("room_code = ? AND round = ? AND voter = ?", vote.RoomCode, vote.Round, vote.Voter).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return translate(tx.Create(vote).Error)
	})
}

func (g *GormRepository) ListVotes(ctx context.Context, roomCode string, round int) ([]models.Vote, error) {
	var votes []models.Vote
	err := g.db.WithContext(ctx).
		Where("room_code = ? AND round = ?", roomCode, round).
		Order("id").Find(&votes).Error
	return votes, err
}

func (g *GormRepository) ClearVotes(ctx context.Context, roomCode string, round int) error {
	return g.db.WithContext(ctx).
		Where("room_code = ? AND round = ?", roomCode, round).
		Delete(&models.Vote{}).Error
}

func (g *GormRepository) AddMessage(ctx context.Context, message *models.Message) error {
	if message.SentAt.IsZero() {
		message.SentAt = timeNow()
	}
	exists, err := g.RoomExists(ctx, message.RoomCode)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return translate(g.db.WithContext(ctx).Create(message).Error)
}

func (g *GormRepository) ListMessages(ctx context.Context, roomCode string, limit int) ([]models.Message, error) {
	var messages []models.Message
	query := g.db.WithContext(ctx).Where("room_code = ?", roomCode).Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	// 新しい順で取得したので送信順に戻す
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (g *GormRepository) ClearMessages(ctx context.Context, roomCode string) error {
	return g.db.WithContext(ctx).Where("room_code = ?", roomCode).Delete(&models.Message{}).Error
}
