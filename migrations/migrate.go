package migrations

import (
	"fmt"

	"imposterserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// テーブルの作成
func AutoMigrate(db *gorm.DB, logger *zap.Logger) error {
	tables := []interface{}{
		&models.Room{},
		&models.Player{},
		&models.Answer{},
		&models.Vote{},
		&models.Message{},
	}
	for _, table := range tables {
		existed := db.Migrator().HasTable(table)
		if err := db.AutoMigrate(table); err != nil {
			return fmt.Errorf("migrate %T: %w", table, err)
		}
		if !existed {
			logger.Info("table created", zap.String("model", fmt.Sprintf("%T", table)))
		}
	}
	return nil
}
