package utils

import (
	"context"
	"time"

	"imposterserver/imposter/game"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronCleaner は一定時間操作のないルームを定期的に削除する
func CronCleaner(manager *game.Manager, schedule string, idleFor time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		logger.Info("放置されたルームの削除を開始")
		removed := manager.SweepIdleRooms(context.Background(), idleFor)
		logger.Info("放置されたルームの削除完了",
			zap.Int("rooms_deleted", removed), zap.Int("rooms_active", manager.RoomCount()))
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
