package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"imposterserver/imposter/protocol"
	"imposterserver/metrics"
	"imposterserver/models"

	"go.uber.org/zap"
)

type phaseHandler func(ctx context.Context, room *models.Room) error

// startRound は現在のラウンドの質問フェーズを始める。接続中のプレイヤーが足りなければ何もしない
func (s *Session) startRound(ctx context.Context, room *models.Room) error {
	players, err := s.connectedPlayers(ctx)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	if len(players) < MinPlayers {
		return ErrInsufficientPlayers
	}

	// 前回の同じラウンドの残りを消す
	if err := s.repo.ClearAnswers(ctx, s.code, room.CurrentRound); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	if err := s.repo.ClearVotes(ctx, s.code, room.CurrentRound); err != nil {
		return fmt.Errorf("clear votes: %w", err)
	}

	question := s.opts.Questions.Pick(s.rng)
	imposter := players[s.rng.Intn(len(players))].Username
	room.Phase = models.PhaseQuestion
	room.CurrentQuestion = &question.Text
	room.CurrentImposter = &imposter
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	s.transitioned(room)

	s.schedule(seconds(room.Settings.AnswerTimeSeconds), room, s.startVoting)
	for _, p := range players {
		s.send(p.Username, protocol.GameStateUpdate, s.questionPayload(room, p.Username))
	}
	return s.broadcastRoomState(ctx)
}

func (s *Session) questionPayload(room *models.Room, username string) protocol.QuestionPhaseData {
	question := deref(room.CurrentQuestion)
	if username == deref(room.CurrentImposter) {
		if variant, ok := s.opts.Questions.ImposterVariant(question); ok {
			question = variant
		}
	}
	return protocol.QuestionPhaseData{
		Phase:        models.PhaseQuestion,
		CurrentRound: room.CurrentRound,
		TotalRounds:  room.Settings.TotalRounds,
		Question:     question,
		TimeLeft:     s.timeLeft(),
	}
}

func (s *Session) advanceIfAllAnswered(ctx context.Context, room *models.Room) error {
	answers, err := s.repo.ListAnswers(ctx, s.code, room.CurrentRound)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	submitted := make(map[string]bool, len(answers))
	for _, a := range answers {
		submitted[a.Player] = true
	}
	done, err := s.allConnectedIn(ctx, submitted)
	if err != nil || !done {
		return err
	}
	return s.startVoting(ctx, room)
}

func (s *Session) startVoting(ctx context.Context, room *models.Room) error {
	room.Phase = models.PhaseVoting
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	s.transitioned(room)

	s.schedule(seconds(room.Settings.VoteTimeSeconds), room, s.showResults)
	payload, err := s.votingPayload(ctx, room)
	if err != nil {
		return err
	}
	s.broadcast(protocol.GameStateUpdate, payload)
	return s.broadcastRoomState(ctx)
}

// votingPayload は回答を投稿者なしでシャッフルして返す
func (s *Session) votingPayload(ctx context.Context, room *models.Room) (protocol.VotingPhaseData, error) {
	answers, err := s.repo.ListAnswers(ctx, s.code, room.CurrentRound)
	if err != nil {
		return protocol.VotingPhaseData{}, fmt.Errorf("list answers: %w", err)
	}
	players, err := s.repo.ListPlayers(ctx, s.code)
	if err != nil {
		return protocol.VotingPhaseData{}, fmt.Errorf("list players: %w", err)
	}

	anonymous := make([]protocol.AnonymousAnswer, len(answers))
	for i, j := range s.rng.Perm(len(answers)) {
		anonymous[i] = protocol.AnonymousAnswer{Answer: answers[j].Text}
	}
	candidates := make([]string, 0, len(players))
	for _, p := range players {
		candidates = append(candidates, p.Username)
	}
	return protocol.VotingPhaseData{
		Phase:        models.PhaseVoting,
		CurrentRound: room.CurrentRound,
		Answers:      anonymous,
		Candidates:   candidates,
		TimeLeft:     s.timeLeft(),
	}, nil
}

func (s *Session) advanceIfAllVoted(ctx context.Context, room *models.Room) error {
	votes, err := s.repo.ListVotes(ctx, s.code, room.CurrentRound)
	if err != nil {
		return fmt.Errorf("list votes: %w", err)
	}
	submitted := make(map[string]bool, len(votes))
	for _, v := range votes {
		submitted[v.Voter] = true
	}
	done, err := s.allConnectedIn(ctx, submitted)
	if err != nil || !done {
		return err
	}
	return s.showResults(ctx, room)
}

func (s *Session) allConnectedIn(ctx context.Context, submitted map[string]bool) (bool, error) {
	connected, err := s.connectedPlayers(ctx)
	if err != nil {
		return false, fmt.Errorf("list players: %w", err)
	}
	for _, p := range connected {
		if !submitted[p.Username] {
			return false, nil
		}
	}
	return true, nil
}

// showResults は集計と採点を行い、結果を公開する
func (s *Session) showResults(ctx context.Context, room *models.Room) error {
	room.Phase = models.PhaseResults
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	s.transitioned(room)

	votes, err := s.repo.ListVotes(ctx, s.code, room.CurrentRound)
	if err != nil {
		return fmt.Errorf("list votes: %w", err)
	}
	imposter := deref(room.CurrentImposter)
	for _, v := range votes {
		if imposter == "" || v.VotedFor != imposter {
			continue
		}
		player, err := s.repo.GetPlayer(ctx, s.code, v.Voter)
		if err != nil {
			s.logger.Error("voter not found", zap.String("voter", v.Voter), zap.Error(err))
			continue
		}
		player.Score += PointsPerCorrectVote
		if err := s.repo.UpdatePlayer(ctx, player); err != nil {
			return fmt.Errorf("update score: %w", err)
		}
	}

	answers, err := s.repo.ListAnswers(ctx, s.code, room.CurrentRound)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	players, err := s.repo.ListPlayers(ctx, s.code)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	revealed := make([]protocol.RevealedAnswer, 0, len(answers))
	for _, a := range answers {
		revealed = append(revealed, protocol.RevealedAnswer{Player: a.Player, Answer: a.Text})
	}
	question := deref(room.CurrentQuestion)
	variant, _ := s.opts.Questions.ImposterVariant(question)

	s.broadcast(protocol.GameStateUpdate, protocol.ResultsPhaseData{
		Phase:            models.PhaseResults,
		CurrentRound:     room.CurrentRound,
		TotalRounds:      room.Settings.TotalRounds,
		Imposter:         imposter,
		Question:         question,
		ImposterQuestion: variant,
		VoteCounts:       TallyVotes(votes),
		Players:          protocol.NewPlayerViews(players),
		Answers:          revealed,
	})

	if room.CurrentRound >= room.Settings.TotalRounds {
		s.schedule(s.opts.FinalDelay, room, s.finish)
	} else {
		s.schedule(s.opts.ResultsDelay, room, s.nextRound)
	}
	return s.broadcastRoomState(ctx)
}

// TallyVotes は候補ごとの得票数。同数でも勝者は決めない
func TallyVotes(votes []models.Vote) map[string]int {
	counts := make(map[string]int)
	for _, v := range votes {
		if v.VotedFor == models.NoVote {
			continue
		}
		counts[v.VotedFor]++
	}
	return counts
}

func (s *Session) finish(ctx context.Context, room *models.Room) error {
	room.Phase = models.PhaseFinished
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	s.transitioned(room)

	players, err := s.repo.ListPlayers(ctx, s.code)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })
	s.broadcast(protocol.GameStateUpdate, protocol.FinishedPhaseData{
		Phase:   models.PhaseFinished,
		Players: protocol.NewPlayerViews(players),
	})
	return s.broadcastRoomState(ctx)
}

// nextRound はラウンドを進めて一度 waiting に戻し、すぐに次の質問を始める
func (s *Session) nextRound(ctx context.Context, room *models.Room) error {
	room.CurrentRound++
	room.Phase = models.PhaseWaiting
	room.CurrentQuestion = nil
	room.CurrentImposter = nil
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	s.transitioned(room)

	err := s.startRound(ctx, room)
	if errors.Is(err, ErrInsufficientPlayers) {
		s.addSystemMessage(ctx, "Not enough players to continue")
		return s.broadcastRoomState(ctx)
	}
	return err
}

// schedule は締め切りを設定する。発火時にフェーズかラウンドが変わっていれば何もしない
func (s *Session) schedule(d time.Duration, room *models.Room, next phaseHandler) {
	phase, round := room.Phase, room.CurrentRound
	s.deadline = s.opts.Now().Add(d)
	s.timer = s.opts.Scheduler.AfterFunc(d, func() {
		s.onDeadline(phase, round, next)
	})
}

func (s *Session) onDeadline(phase models.Phase, round int, next phaseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ctx := context.Background()
	room, err := s.loadRoom(ctx)
	if err != nil {
		s.logger.Error("failed to load room for deadline", zap.Error(err))
		return
	}
	if room.Phase != phase || room.CurrentRound != round {
		s.logger.Debug("stale deadline ignored",
			zap.String("expectedPhase", string(phase)), zap.Int("expectedRound", round),
			zap.String("phase", string(room.Phase)), zap.Int("round", room.CurrentRound))
		return
	}
	s.touch()
	if err := next(ctx, room); err != nil {
		s.logger.Error("deadline transition failed", zap.String("phase", string(phase)), zap.Error(err))
	}
}

func (s *Session) timeLeft() int {
	left := s.deadline.Sub(s.opts.Now()).Seconds()
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left))
}

func (s *Session) transitioned(room *models.Room) {
	metrics.PhaseTransitions.WithLabelValues(string(room.Phase)).Inc()
	s.logger.Info("phase changed", zap.String("phase", string(room.Phase)), zap.Int("round", room.CurrentRound))
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
