// Package imposter はゲームのWebSocketエンドポイントです。
package imposter

import (
	"context"
	"net/http"

	"imposterserver/imposter/connection"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket接続へのアップグレードを行う関数
// ctx はサーバーの寿命と同じもの。リクエストのコンテキストはハンドラを抜けると終わる
func HandleConnections(ctx context.Context, w http.ResponseWriter, r *http.Request, registry *connection.Registry, router *connection.Router, upgrader websocket.Upgrader, limits connection.Limits, logger *zap.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := connection.NewClient(conn, limits.NewLimiter(), logger)
	registry.Register(client)
	logger.Info("New client added", zap.String("clientID", client.ID), zap.String("remoteAddr", r.RemoteAddr))

	go router.Serve(ctx, client)
}

// NewUpgrader は許可したオリジンだけを受け付ける。空なら全て許可
func NewUpgrader(allowOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
		},
	}
}
