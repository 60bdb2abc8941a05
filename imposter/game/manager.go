// Package game はルームごとのゲーム進行（状態機械）を実装します。
//
// 1ルームにつき1つの Session があり、プレイヤーの操作とタイマーの処理は
// Session のロックの中で1件ずつ最後まで実行されます。ルーム間で共有するロックはありません。
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"imposterserver/imposter/protocol"
	"imposterserver/metrics"
	"imposterserver/models"
	"imposterserver/repository"

	"go.uber.org/zap"
)

const (
	MinPlayers           = 3
	PointsPerCorrectVote = 10

	maxUsernameLength   = 20
	maxRoomCodeAttempts = 20
)

// Notifier はルームに接続中のクライアントへ送信する。送信はベストエフォート
type Notifier interface {
	BroadcastToRoom(roomCode string, env protocol.Envelope)
	SendToPlayer(roomCode, username string, env protocol.Envelope) bool
}

type Options struct {
	Scheduler       Scheduler
	Questions       *QuestionBank
	DefaultSettings models.GameSettings
	// 結果表示から次のラウンドまで
	ResultsDelay time.Duration
	// 最終ラウンドの結果表示から終了画面まで
	FinalDelay     time.Duration
	MaxChatHistory int
	NewRoomCode    func() string
	Now            func() time.Time
}

func (o *Options) setDefaults() {
	if o.Scheduler == nil {
		o.Scheduler = SystemScheduler()
	}
	if o.Questions == nil {
		o.Questions = DefaultQuestionBank()
	}
	if o.DefaultSettings == (models.GameSettings{}) {
		o.DefaultSettings = models.DefaultGameSettings()
	}
	if o.ResultsDelay == 0 {
		o.ResultsDelay = 10 * time.Second
	}
	if o.FinalDelay == 0 {
		o.FinalDelay = 5 * time.Second
	}
	if o.MaxChatHistory == 0 {
		o.MaxChatHistory = 100
	}
	if o.NewRoomCode == nil {
		o.NewRoomCode = GenerateRoomCode
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager は稼働中のルームの Session を管理する
type Manager struct {
	repo     repository.Repository
	notifier Notifier
	logger   *zap.Logger
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(repo repository.Repository, notifier Notifier, logger *zap.Logger, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// CreateRoom は未使用のルームコードでルームを作り、ホストを最初のプレイヤーとして追加する
func (m *Manager) CreateRoom(ctx context.Context, host string) (*Session, error) {
	host, err := NormalizeUsername(host)
	if err != nil {
		return nil, err
	}

	var room *models.Room
	for attempt := 0; room == nil; attempt++ {
		if attempt == maxRoomCodeAttempts {
			return nil, errors.New("could not allocate a unique room code")
		}
		code := m.opts.NewRoomCode()
		exists, err := m.repo.RoomExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check room code: %w", err)
		}
		if exists {
			continue
		}
		candidate := &models.Room{
			Code:         code,
			HostUsername: host,
			Settings:     m.opts.DefaultSettings,
			CurrentRound: 1,
			Phase:        models.PhaseWaiting,
		}
		err = m.repo.CreateRoom(ctx, candidate)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		room = candidate
	}

	player := &models.Player{
		RoomCode:    room.Code,
		Username:    host,
		IsHost:      true,
		IsConnected: true,
		JoinedAt:    m.opts.Now(),
	}
	if err := m.repo.AddPlayer(ctx, player); err != nil {
		if delErr := m.repo.DeleteRoom(ctx, room.Code); delErr != nil {
			m.logger.Error("failed to roll back room", zap.String("roomCode", room.Code), zap.Error(delErr))
		}
		return nil, fmt.Errorf("add host: %w", err)
	}

	s := newSession(room.Code, m)
	s.addSystemMessage(ctx, fmt.Sprintf("%s created the room", host))

	m.mu.Lock()
	m.sessions[room.Code] = s
	m.mu.Unlock()
	metrics.ActiveRooms.Inc()

	m.logger.Info("room created", zap.String("roomCode", room.Code), zap.String("host", host))
	return s, nil
}

func (m *Manager) Session(code string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[NormalizeRoomCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s, nil
}

// JoinRoom はゲストとしてルームに参加する
func (m *Manager) JoinRoom(ctx context.Context, code, username string) (*Session, error) {
	s, err := m.Session(code)
	if err != nil {
		return nil, err
	}
	if err := s.AddPlayer(ctx, username); err != nil {
		return nil, err
	}
	return s, nil
}

// SweepIdleRooms は idleFor 以上操作のないルームのうち、接続中のプレイヤーがいないか
// 終了済みのものを削除する
func (m *Manager) SweepIdleRooms(ctx context.Context, idleFor time.Duration) int {
	now := m.opts.Now()

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	removed := 0
	for _, s := range sessions {
		if !s.closeIfIdle(ctx, now, idleFor) {
			continue
		}
		m.mu.Lock()
		delete(m.sessions, s.code)
		m.mu.Unlock()
		metrics.ActiveRooms.Dec()

		if err := m.repo.DeleteRoom(ctx, s.code); err != nil && !errors.Is(err, repository.ErrNotFound) {
			m.logger.Error("failed to delete idle room", zap.String("roomCode", s.code), zap.Error(err))
		}
		m.logger.Info("idle room removed", zap.String("roomCode", s.code))
		removed++
	}
	return removed
}

func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength || username == models.NoVote {
		return "", ErrInvalidUsername
	}
	return username, nil
}
