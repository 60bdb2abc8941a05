package models

import "time"

// Message はルームのチャット。システムメッセージも同じテーブルに保存する
type Message struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	RoomCode string    `json:"roomCode" gorm:"index;size:6;not null"`
	Author   string    `json:"author" gorm:"not null"`
	Content  string    `json:"content" gorm:"not null"`
	IsSystem bool      `json:"isSystem" gorm:"not null"`
	SentAt   time.Time `json:"sentAt"`
}
