package connection

import (
	"imposterserver/imposter/protocol"
	"imposterserver/metrics"

	"go.uber.org/zap"
)

// Broadcast はルームの全接続に送る。送れなかった接続は飛ばす
func (r *Registry) Broadcast(roomCode string, env protocol.Envelope, exclude *Client) int {
	frame, err := protocol.Encode(env)
	if err != nil {
		r.logger.Error("Failed to encode broadcast", zap.String("type", string(env.Type)), zap.Error(err))
		return 0
	}
	delivered := 0
	for _, c := range r.roomClients(roomCode, exclude) {
		if r.deliver(c, frame) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) BroadcastToRoom(roomCode string, env protocol.Envelope) {
	r.Broadcast(roomCode, env, nil)
}

func (r *Registry) SendToPlayer(roomCode, username string, env protocol.Envelope) bool {
	frame, err := protocol.Encode(env)
	if err != nil {
		r.logger.Error("Failed to encode message", zap.String("type", string(env.Type)), zap.Error(err))
		return false
	}
	sent := false
	for _, c := range r.roomClients(roomCode, nil) {
		if id, ok := r.Identity(c); ok && id.Username == username {
			sent = r.deliver(c, frame) || sent
		}
	}
	return sent
}

// SendTo はルーム参加前の接続にも送れる
func (r *Registry) SendTo(c *Client, env protocol.Envelope) bool {
	frame, err := protocol.Encode(env)
	if err != nil {
		r.logger.Error("Failed to encode message", zap.String("type", string(env.Type)), zap.Error(err))
		return false
	}
	return r.deliver(c, frame)
}

func (r *Registry) deliver(c *Client, frame []byte) bool {
	if c.Send(frame) {
		return true
	}
	metrics.DroppedFrames.Inc()
	r.logger.Warn("Dropped frame", zap.String("clientID", c.ID), zap.Bool("closed", c.Closed()))
	return false
}
