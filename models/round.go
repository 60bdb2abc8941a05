package models

import "time"

// NoVote は投票時間切れでクライアントが送る投票先。集計には含めない
const NoVote = "(No Vote)"

// Answer は1ラウンドにつき1プレイヤー1件
type Answer struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RoomCode    string    `json:"roomCode" gorm:"uniqueIndex:idx_answers_room_round_player;size:6;not null"`
	Round       int       `json:"round" gorm:"uniqueIndex:idx_answers_room_round_player;not null"`
	Player      string    `json:"player" gorm:"uniqueIndex:idx_answers_room_round_player;not null"`
	Text        string    `json:"answer" gorm:"column:answer;not null"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Vote は1ラウンドにつき1投票者1件
type Vote struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RoomCode    string    `json:"roomCode" gorm:"uniqueIndex:idx_votes_room_round_voter;size:6;not null"`
	Round       int       `json:"round" gorm:"uniqueIndex:idx_votes_room_round_voter;not null"`
	Voter       string    `json:"voter" gorm:"uniqueIndex:idx_votes_room_round_voter;not null"`
	VotedFor    string    `json:"votedFor" gorm:"not null"`
	SubmittedAt time.Time `json:"submittedAt"`
}
