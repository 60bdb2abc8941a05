// Package repository はルーム・プレイヤー・回答・投票・チャットの永続化を抽象化します。
// ゲームロジックはこのインターフェースだけを通して状態を読み書きします。
package repository

import (
	"context"
	"errors"

	"imposterserver/models"
)

var (
	ErrNotFound  = errors.New("repository: record not found")
	ErrDuplicate = errors.New("repository: duplicate record")
)

// Repository はルームコード（とラウンド番号）をキーにした永続化操作
type Repository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	UpdateRoom(ctx context.Context, room *models.Room) error
	// DeleteRoom はルームと関連するすべてのレコードを削除する
	DeleteRoom(ctx context.Context, code string) error
	RoomExists(ctx context.Context, code string) (bool, error)
	ListRooms(ctx context.Context) ([]models.Room, error)

	AddPlayer(ctx context.Context, player *models.Player) error
	GetPlayer(ctx context.Context, roomCode, username string) (*models.Player, error)
	// ListPlayers は参加順に返す
	ListPlayers(ctx context.Context, roomCode string) ([]models.Player, error)
	UpdatePlayer(ctx context.Context, player *models.Player) error

	AddAnswer(ctx context.Context, answer *models.Answer) error
	ListAnswers(ctx context.Context, roomCode string, round int) ([]models.Answer, error)
	ClearAnswers(ctx context.Context, roomCode string, round int) error

	AddVote(ctx context.Context, vote *models.Vote) error
	ListVotes(ctx context.Context, roomCode string, round int) ([]models.Vote, error)
	ClearVotes(ctx context.Context, roomCode string, round int) error

	AddMessage(ctx context.Context, message *models.Message) error
	// ListMessages は送信順に返す。limit > 0 の場合は最新 limit 件
	ListMessages(ctx context.Context, roomCode string, limit int) ([]models.Message, error)
	ClearMessages(ctx context.Context, roomCode string) error
}
