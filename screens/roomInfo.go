package screens

import (
	"errors"
	"net/http"

	"imposterserver/imposter/game"
	"imposterserver/imposter/protocol"
	"imposterserver/repository"

	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

// 参加画面で入力されたルームコードの確認に使うハンドラー
func RoomInfo(c *gin.Context, repo repository.Repository, logger *zap.Logger) {
	code := game.NormalizeRoomCode(c.Param("code"))
	ctx := c.Request.Context()

	room, err := repo.GetRoom(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "room_not_found",
			"error":  game.ErrRoomNotFound.Error(),
		})
		return
	}
	if err != nil {
		logger.Error("Failed to find room", zap.String("roomCode", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
		return
	}

	players, err := repo.ListPlayers(ctx, code)
	if err != nil {
		logger.Error("Failed to list players", zap.String("roomCode", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load players"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"room":    protocol.NewRoomSnapshot(room),
		"players": protocol.NewPlayerViews(players),
	})
}

// ロードバランサーからの死活監視用
func Health(c *gin.Context, rooms int, clients int) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"rooms":   rooms,
		"clients": clients,
	})
}
