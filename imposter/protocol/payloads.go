package protocol

import (
	"time"

	"imposterserver/models"
)

type JoinRoomData struct {
	RoomCode string `json:"roomCode,omitempty"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
}

type SendAnswerData struct {
	Answer string `json:"answer"`
}

type SendVoteData struct {
	VotedFor string `json:"votedFor"`
}

type SendMessageData struct {
	Content string `json:"content"`
}

// 省略した項目は変更しない
type UpdateSettingsData struct {
	AnswerTime  *int `json:"answerTime,omitempty"`
	VoteTime    *int `json:"voteTime,omitempty"`
	TotalRounds *int `json:"totalRounds,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// RoomCreatedData はホストがルームを作成した直後に本人にだけ送る
type RoomCreatedData struct {
	RoomCode string `json:"roomCode"`
}

// RoomSnapshot は進行中の質問やインポスターを含まないルーム情報
type RoomSnapshot struct {
	Code         string              `json:"code"`
	HostUsername string              `json:"hostUsername"`
	Settings     models.GameSettings `json:"settings"`
	CurrentRound int                 `json:"currentRound"`
	Phase        models.Phase        `json:"phase"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func NewRoomSnapshot(room *models.Room) RoomSnapshot {
	return RoomSnapshot{
		Code:         room.Code,
		HostUsername: room.HostUsername,
		Settings:     room.Settings,
		CurrentRound: room.CurrentRound,
		Phase:        room.Phase,
		CreatedAt:    room.CreatedAt,
	}
}

type PlayerView struct {
	Username    string `json:"username"`
	Score       int    `json:"score"`
	IsHost      bool   `json:"isHost"`
	IsConnected bool   `json:"isConnected"`
}

func NewPlayerViews(players []models.Player) []PlayerView {
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, PlayerView{
			Username:    p.Username,
			Score:       p.Score,
			IsHost:      p.IsHost,
			IsConnected: p.IsConnected,
		})
	}
	return views
}

type ChatMessage struct {
	Author   string    `json:"author"`
	Content  string    `json:"content"`
	IsSystem bool      `json:"isSystem"`
	SentAt   time.Time `json:"sentAt"`
}

func NewChatMessages(messages []models.Message) []ChatMessage {
	views := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		views = append(views, ChatMessage{
			Author:   m.Author,
			Content:  m.Content,
			IsSystem: m.IsSystem,
			SentAt:   m.SentAt,
		})
	}
	return views
}

type RoomUpdateData struct {
	Room     RoomSnapshot  `json:"room"`
	Players  []PlayerView  `json:"players"`
	Messages []ChatMessage `json:"messages"`
}

// QuestionPhaseData は各プレイヤーに個別に送る。インポスターには別の質問が入る
type QuestionPhaseData struct {
	Phase        models.Phase `json:"phase"`
	CurrentRound int          `json:"currentRound"`
	TotalRounds  int          `json:"totalRounds"`
	Question     string       `json:"question"`
	TimeLeft     int          `json:"timeLeft"`
}

type AnonymousAnswer struct {
	Answer string `json:"answer"`
}

type VotingPhaseData struct {
	Phase        models.Phase      `json:"phase"`
	CurrentRound int               `json:"currentRound"`
	Answers      []AnonymousAnswer `json:"answers"`
	Candidates   []string          `json:"candidates"`
	TimeLeft     int               `json:"timeLeft"`
}

type RevealedAnswer struct {
	Player string `json:"player"`
	Answer string `json:"answer"`
}

type ResultsPhaseData struct {
	Phase            models.Phase     `json:"phase"`
	CurrentRound     int              `json:"currentRound"`
	TotalRounds      int              `json:"totalRounds"`
	Imposter         string           `json:"imposter"`
	Question         string           `json:"question"`
	ImposterQuestion string           `json:"imposterQuestion"`
	VoteCounts       map[string]int   `json:"voteCounts"`
	Players          []PlayerView     `json:"players"`
	Answers          []RevealedAnswer `json:"answers"`
}

type FinishedPhaseData struct {
	Phase   models.Phase `json:"phase"`
	Players []PlayerView `json:"players"`
}
