package models

import "time"

// Player はルーム内のプレイヤー。ユーザー名はルーム内で一意
type Player struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RoomCode    string    `json:"roomCode" gorm:"uniqueIndex:idx_players_room_username;size:6;not null"`
	Username    string    `json:"username" gorm:"uniqueIndex:idx_players_room_username;not null"`
	Score       int       `json:"score" gorm:"not null;default:0"`
	IsHost      bool      `json:"isHost" gorm:"not null"`
	IsConnected bool      `json:"isConnected" gorm:"not null"`
	JoinedAt    time.Time `json:"joinedAt"`
}
