package connection

import (
	"context"
	"errors"

	"imposterserver/imposter/game"
	"imposterserver/imposter/protocol"
	"imposterserver/metrics"

	"go.uber.org/zap"
)

var errAlreadyJoined = errors.New("connection already joined a room")

// Router はクライアントからのメッセージをルームの Session に振り分ける
type Router struct {
	registry *Registry
	manager  *game.Manager
	logger   *zap.Logger
}

func NewRouter(registry *Registry, manager *game.Manager, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		manager:  manager,
		logger:   logger,
	}
}

// Serve は接続が閉じるまでブロックする
func (rt *Router) Serve(ctx context.Context, c *Client) {
	go c.WritePump()
	c.ReadPump(ctx, func(ctx context.Context, raw []byte) {
		rt.HandleMessage(ctx, c, raw)
	})
	rt.HandleDisconnect(ctx, c)
}

func (rt *Router) HandleMessage(ctx context.Context, c *Client, raw []byte) {
	if !c.allow() {
		metrics.Intents.WithLabelValues("unknown", "rate_limited").Inc()
		rt.logger.Warn("rate limit exceeded", zap.String("clientID", c.ID))
		return
	}

	env, err := protocol.Decode(raw)
	if err != nil {
		rt.logger.Info("Invalid message format", zap.String("clientID", c.ID), zap.Error(err))
		rt.respond(c, "unknown", err)
		return
	}

	if env.Type == protocol.JoinRoom {
		rt.respond(c, env.Type, rt.handleJoin(ctx, c, env))
		return
	}

	id, ok := rt.registry.Identity(c)
	if !ok {
		metrics.Intents.WithLabelValues(string(env.Type), "unjoined").Inc()
		rt.logger.Debug("message before joining a room", zap.String("clientID", c.ID), zap.String("type", string(env.Type)))
		return
	}
	session, err := rt.manager.Session(id.RoomCode)
	if err != nil {
		metrics.Intents.WithLabelValues(string(env.Type), "ignored").Inc()
		rt.logger.Debug("room is gone", zap.String("roomCode", id.RoomCode))
		return
	}
	rt.respond(c, env.Type, rt.dispatch(ctx, session, id, env))
}

func (rt *Router) dispatch(ctx context.Context, s *game.Session, id Identity, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.StartGame:
		return s.Start(ctx, id.Username)
	case protocol.SendAnswer:
		var data protocol.SendAnswerData
		if err := env.Bind(&data); err != nil {
			return err
		}
		return s.SubmitAnswer(ctx, id.Username, data.Answer)
	case protocol.SendVote:
		var data protocol.SendVoteData
		if err := env.Bind(&data); err != nil {
			return err
		}
		return s.SubmitVote(ctx, id.Username, data.VotedFor)
	case protocol.SendMessage:
		var data protocol.SendMessageData
		if err := env.Bind(&data); err != nil {
			return err
		}
		return s.PostMessage(ctx, id.Username, data.Content)
	case protocol.UpdateSettings:
		var data protocol.UpdateSettingsData
		if err := env.Bind(&data); err != nil {
			return err
		}
		return s.UpdateSettings(ctx, id.Username, game.SettingsUpdate{
			AnswerTimeSeconds: data.AnswerTime,
			VoteTimeSeconds:   data.VoteTime,
			TotalRounds:       data.TotalRounds,
		})
	}
	return nil
}

// handleJoin はホストならルームを作成し、ゲストなら既存のルームに参加させる
func (rt *Router) handleJoin(ctx context.Context, c *Client, env *protocol.Envelope) error {
	if _, ok := rt.registry.Identity(c); ok {
		return errAlreadyJoined
	}
	var data protocol.JoinRoomData
	if err := env.Bind(&data); err != nil {
		return err
	}
	username, err := game.NormalizeUsername(data.Username)
	if err != nil {
		return err
	}

	if data.IsHost {
		s, err := rt.manager.CreateRoom(ctx, username)
		if err != nil {
			return err
		}
		rt.registry.Bind(c, s.Code(), username)
		created, err := protocol.New(protocol.RoomUpdate, protocol.RoomCreatedData{RoomCode: s.Code()})
		if err != nil {
			return err
		}
		rt.registry.SendTo(c, created)
		return s.BroadcastRoomState(ctx)
	}

	s, err := rt.manager.JoinRoom(ctx, data.RoomCode, username)
	if err != nil {
		return err
	}
	rt.registry.Bind(c, s.Code(), username)
	if err := s.BroadcastRoomState(ctx); err != nil {
		return err
	}
	return s.SyncPlayer(ctx, username)
}

// HandleDisconnect はプレイヤーを切断状態にしてから接続の紐付けを外す
func (rt *Router) HandleDisconnect(ctx context.Context, c *Client) {
	if id, ok := rt.registry.Identity(c); ok {
		if s, err := rt.manager.Session(id.RoomCode); err == nil {
			if err := s.Disconnect(ctx, id.Username); err != nil && !errors.Is(err, game.ErrRoomClosed) {
				rt.logger.Error("failed to mark player disconnected",
					zap.String("roomCode", id.RoomCode), zap.String("username", id.Username), zap.Error(err))
			}
		}
	}
	rt.registry.Unregister(c)
}

// respond はユーザーに見せるエラーだけを本人に返す
func (rt *Router) respond(c *Client, t protocol.MessageType, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrMalformedMessage):
		outcome = "malformed"
		rt.registry.SendTo(c, protocol.NewError(protocol.ErrMalformedMessage.Error()))
	case isSilent(err):
		outcome = "ignored"
		rt.logger.Debug("intent ignored", zap.String("clientID", c.ID), zap.String("type", string(t)), zap.Error(err))
	default:
		if msg, ok := game.UserMessage(err); ok {
			outcome = "rejected"
			rt.registry.SendTo(c, protocol.NewError(msg))
			break
		}
		outcome = "error"
		rt.logger.Error("intent failed", zap.String("clientID", c.ID), zap.String("type", string(t)), zap.Error(err))
	}
	metrics.Intents.WithLabelValues(string(t), outcome).Inc()
}

func isSilent(err error) bool {
	for _, e := range []error{
		game.ErrInvalidPhaseAction,
		game.ErrDuplicateSubmission,
		game.ErrInvalidSubmission,
		game.ErrRoomClosed,
		errAlreadyJoined,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
