package connection

import (
	"sync"

	"imposterserver/metrics"

	"go.uber.org/zap"
)

// Identity はルームへの参加が成功した接続に紐付く
type Identity struct {
	RoomCode string
	Username string
}

// Registry は接続中のクライアントと、そのルーム・ユーザー名の対応を管理する
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]*Identity
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		clients: make(map[*Client]*Identity),
		logger:  logger,
	}
}

// Register は参加前の接続を登録する
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		return
	}
	r.clients[c] = nil
	metrics.ConnectedClients.Inc()
}

// Bind はルーム参加に成功した接続にIDを紐付ける
func (r *Registry) Bind(c *Client, roomCode, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return false
	}
	r.clients[c] = &Identity{RoomCode: roomCode, Username: username}
	r.logger.Info("client joined room",
		zap.String("clientID", c.ID), zap.String("roomCode", roomCode), zap.String("username", username))
	return true
}

func (r *Registry) Identity(c *Client) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := r.clients[c]
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}

func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	metrics.ConnectedClients.Dec()
	r.logger.Info("Client removed", zap.String("clientID", c.ID))
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// roomClients はルームの接続一覧。exclude は除外する
func (r *Registry) roomClients(roomCode string, exclude *Client) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var targets []*Client
	for c, id := range r.clients {
		if id != nil && id.RoomCode == roomCode && c != exclude {
			targets = append(targets, c)
		}
	}
	return targets
}
