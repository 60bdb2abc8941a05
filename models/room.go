package models

import "time"

// Phase はルームの進行段階
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseQuestion Phase = "question"
	PhaseVoting   Phase = "voting"
	PhaseResults  Phase = "results"
	PhaseFinished Phase = "finished"
)

// GameSettings はホストが待機中に変更できるゲーム設定
type GameSettings struct {
	AnswerTimeSeconds int `json:"answerTime" gorm:"not null"`
	VoteTimeSeconds   int `json:"voteTime" gorm:"not null"`
	TotalRounds       int `json:"totalRounds" gorm:"not null"`
}

func DefaultGameSettings() GameSettings {
	return GameSettings{
		AnswerTimeSeconds: 60,
		VoteTimeSeconds:   60,
		TotalRounds:       5,
	}
}

// Room モデルの定義
// CurrentQuestion と CurrentImposter はクライアントへそのまま送らないこと
type Room struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	Code            string       `json:"code" gorm:"uniqueIndex;size:6;not null"`
	HostUsername    string       `json:"hostUsername" gorm:"not null"`
	Settings        GameSettings `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`
	CurrentRound    int          `json:"currentRound" gorm:"not null"`
	Phase           Phase        `json:"phase" gorm:"not null;default:'waiting'"`
	CurrentQuestion *string      `json:"currentQuestion,omitempty"`
	CurrentImposter *string      `json:"currentImposter,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}
