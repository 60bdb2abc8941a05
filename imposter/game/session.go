package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"imposterserver/imposter/protocol"
	"imposterserver/models"
	"imposterserver/repository"

	"go.uber.org/zap"
)

const (
	maxAnswerLength  = 200
	maxMessageLength = 500
)

// SettingsUpdate は nil の項目を変更しない
type SettingsUpdate struct {
	AnswerTimeSeconds *int
	VoteTimeSeconds   *int
	TotalRounds       *int
}

// Session は1ルームの進行を担当する。公開メソッドはすべて s.mu の中で実行される
type Session struct {
	code     string
	repo     repository.Repository
	notifier Notifier
	logger   *zap.Logger
	opts     *Options

	mu           sync.Mutex
	rng          *rand.Rand
	closed       bool
	timer        Timer
	deadline     time.Time
	lastActivity time.Time
}

func newSession(code string, m *Manager) *Session {
	return &Session{
		code:         code,
		repo:         m.repo,
		notifier:     m.notifier,
		logger:       m.logger.With(zap.String("roomCode", code)),
		opts:         &m.opts,
		rng:          createLocalRandGenerator(),
		lastActivity: m.opts.Now(),
	}
}

func (s *Session) Code() string {
	return s.code
}

// AddPlayer はゲストを追加する。状態の送信は接続の紐付け後に呼び出し側が行う
func (s *Session) AddPlayer(ctx context.Context, username string) error {
	username, err := NormalizeUsername(username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadRoom(ctx); err != nil {
		return err
	}

	err = s.repo.AddPlayer(ctx, &models.Player{
		RoomCode:    s.code,
		Username:    username,
		IsConnected: true,
		JoinedAt:    s.opts.Now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("add player: %w", err)
	}

	s.touch()
	s.addSystemMessage(ctx, fmt.Sprintf("%s joined the room", username))
	s.logger.Info("player joined", zap.String("username", username))
	return nil
}

// Disconnect はプレイヤーを切断状態にする。ラウンド中なら残りのプレイヤーで完了判定をやり直す
func (s *Session) Disconnect(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	player, err := s.repo.GetPlayer(ctx, s.code, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	player.IsConnected = false
	if err := s.repo.UpdatePlayer(ctx, player); err != nil {
		return fmt.Errorf("mark disconnected: %w", err)
	}
	s.touch()
	s.addSystemMessage(ctx, fmt.Sprintf("%s left the room", username))
	s.logger.Info("player disconnected", zap.String("username", username))

	if err := s.broadcastRoomState(ctx); err != nil {
		return err
	}
	switch room.Phase {
	case models.PhaseQuestion:
		return s.advanceIfAllAnswered(ctx, room)
	case models.PhaseVoting:
		return s.advanceIfAllVoted(ctx, room)
	}
	return nil
}

// Start はホストがゲームを開始する
func (s *Session) Start(ctx context.Context, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	if room.Phase != models.PhaseWaiting {
		return ErrInvalidPhaseAction
	}
	if room.HostUsername != caller {
		return ErrNotHost
	}
	s.touch()
	return s.startRound(ctx, room)
}

func (s *Session) SubmitAnswer(ctx context.Context, username, text string) error {
	text = truncate(strings.TrimSpace(text), maxAnswerLength)
	if text == "" {
		return ErrInvalidSubmission
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	if room.Phase != models.PhaseQuestion {
		return ErrInvalidPhaseAction
	}
	if _, err := s.repo.GetPlayer(ctx, s.code, username); err != nil {
		return ErrInvalidSubmission
	}

	err = s.repo.AddAnswer(ctx, &models.Answer{
		RoomCode:    s.code,
		Round:       room.CurrentRound,
		Player:      username,
		Text:        text,
		SubmittedAt: s.opts.Now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrDuplicateSubmission
	}
	if err != nil {
		return fmt.Errorf("add answer: %w", err)
	}

	s.touch()
	s.addSystemMessage(ctx, fmt.Sprintf("%s has answered.", username))
	if err := s.broadcastRoomState(ctx); err != nil {
		return err
	}
	return s.advanceIfAllAnswered(ctx, room)
}

// SubmitVote の votedFor はルームのプレイヤーか models.NoVote
func (s *Session) SubmitVote(ctx context.Context, voter, votedFor string) error {
	votedFor = strings.TrimSpace(votedFor)

	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	if room.Phase != models.PhaseVoting {
		return ErrInvalidPhaseAction
	}
	if _, err := s.repo.GetPlayer(ctx, s.code, voter); err != nil {
		return ErrInvalidSubmission
	}
	if votedFor != models.NoVote {
		if _, err := s.repo.GetPlayer(ctx, s.code, votedFor); err != nil {
			return ErrInvalidSubmission
		}
	}

	err = s.repo.AddVote(ctx, &models.Vote{
		RoomCode:    s.code,
		Round:       room.CurrentRound,
		Voter:       voter,
		VotedFor:    votedFor,
		SubmittedAt: s.opts.Now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrDuplicateSubmission
	}
	if err != nil {
		return fmt.Errorf("add vote: %w", err)
	}

	s.touch()
	s.addSystemMessage(ctx, fmt.Sprintf("%s has voted.", voter))
	if err := s.broadcastRoomState(ctx); err != nil {
		return err
	}
	return s.advanceIfAllVoted(ctx, room)
}

// PostMessage はどのフェーズでも送れる
func (s *Session) PostMessage(ctx context.Context, author, content string) error {
	content = truncate(strings.TrimSpace(content), maxMessageLength)
	if content == "" {
		return ErrInvalidSubmission
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadRoom(ctx); err != nil {
		return err
	}
	err := s.repo.AddMessage(ctx, &models.Message{
		RoomCode: s.code,
		Author:   author,
		Content:  content,
		SentAt:   s.opts.Now(),
	})
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	s.touch()
	return s.broadcastRoomState(ctx)
}

// UpdateSettings はホストだけが待機中に変更できる
func (s *Session) UpdateSettings(ctx context.Context, caller string, update SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	if room.Phase != models.PhaseWaiting {
		return ErrInvalidPhaseAction
	}
	if room.HostUsername != caller {
		return ErrNotHost
	}

	settings := room.Settings
	if update.AnswerTimeSeconds != nil {
		settings.AnswerTimeSeconds = *update.AnswerTimeSeconds
	}
	if update.VoteTimeSeconds != nil {
		settings.VoteTimeSeconds = *update.VoteTimeSeconds
	}
	if update.TotalRounds != nil {
		settings.TotalRounds = *update.TotalRounds
	}
	if err := ValidateSettings(settings); err != nil {
		return err
	}
	if settings.TotalRounds < room.CurrentRound {
		return ErrInvalidSettings
	}

	room.Settings = settings
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	s.touch()
	return s.broadcastRoomState(ctx)
}

// ValidateSettings は回答・投票時間が10〜300秒、ラウンド数が1〜20であることを確認する
func ValidateSettings(settings models.GameSettings) error {
	switch {
	case settings.AnswerTimeSeconds < 10 || settings.AnswerTimeSeconds > 300:
		return ErrInvalidSettings
	case settings.VoteTimeSeconds < 10 || settings.VoteTimeSeconds > 300:
		return ErrInvalidSettings
	case settings.TotalRounds < 1 || settings.TotalRounds > 20:
		return ErrInvalidSettings
	}
	return nil
}

// BroadcastRoomState はルーム・プレイヤー・チャットをルーム全体に送る
func (s *Session) BroadcastRoomState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadRoom(ctx); err != nil {
		return err
	}
	return s.broadcastRoomState(ctx)
}

// SyncPlayer はラウンドの途中で参加したプレイヤーに現在のフェーズを送る
func (s *Session) SyncPlayer(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	switch room.Phase {
	case models.PhaseQuestion:
		s.send(username, protocol.GameStateUpdate, s.questionPayload(room, username))
	case models.PhaseVoting:
		payload, err := s.votingPayload(ctx, room)
		if err != nil {
			return err
		}
		s.send(username, protocol.GameStateUpdate, payload)
	}
	return nil
}

// 操作がなく、誰も接続していないか終了済みのルームを閉じる
func (s *Session) closeIfIdle(ctx context.Context, now time.Time, idleFor time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || now.Sub(s.lastActivity) < idleFor {
		return false
	}
	room, err := s.repo.GetRoom(ctx, s.code)
	if err == nil && room.Phase != models.PhaseFinished {
		connected, err := s.connectedPlayers(ctx)
		if err != nil || len(connected) > 0 {
			return false
		}
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	return true
}

func (s *Session) loadRoom(ctx context.Context) (*models.Room, error) {
	if s.closed {
		return nil, ErrRoomClosed
	}
	room, err := s.repo.GetRoom(ctx, s.code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	return room, nil
}

func (s *Session) connectedPlayers(ctx context.Context) ([]models.Player, error) {
	players, err := s.repo.ListPlayers(ctx, s.code)
	if err != nil {
		return nil, err
	}
	connected := players[:0]
	for _, p := range players {
		if p.IsConnected {
			connected = append(connected, p)
		}
	}
	return connected, nil
}

func (s *Session) touch() {
	s.lastActivity = s.opts.Now()
}

func (s *Session) addSystemMessage(ctx context.Context, content string) {
	err := s.repo.AddMessage(ctx, &models.Message{
		RoomCode: s.code,
		Author:   "system",
		Content:  content,
		IsSystem: true,
		SentAt:   s.opts.Now(),
	})
	if err != nil {
		s.logger.Error("failed to store system message", zap.Error(err))
	}
}

func (s *Session) broadcastRoomState(ctx context.Context) error {
	room, err := s.repo.GetRoom(ctx, s.code)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	players, err := s.repo.ListPlayers(ctx, s.code)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	messages, err := s.repo.ListMessages(ctx, s.code, s.opts.MaxChatHistory)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	s.broadcast(protocol.RoomUpdate, protocol.RoomUpdateData{
		Room:     protocol.NewRoomSnapshot(room),
		Players:  protocol.NewPlayerViews(players),
		Messages: protocol.NewChatMessages(messages),
	})
	return nil
}

func (s *Session) broadcast(t protocol.MessageType, data interface{}) {
	env, err := protocol.New(t, data)
	if err != nil {
		s.logger.Error("failed to encode payload", zap.String("type", string(t)), zap.Error(err))
		return
	}
	s.notifier.BroadcastToRoom(s.code, env)
}

func (s *Session) send(username string, t protocol.MessageType, data interface{}) {
	env, err := protocol.New(t, data)
	if err != nil {
		s.logger.Error("failed to encode payload", zap.String("type", string(t)), zap.Error(err))
		return
	}
	s.notifier.SendToPlayer(s.code, username, env)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
