package connection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Conn は *websocket.Conn のうち Client が使うメソッド
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Limits はクライアントごとの受信レート制限
type Limits struct {
	PerSecond float64
	Burst     int
}

func (l Limits) NewLimiter() *rate.Limiter {
	if l.PerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(l.PerSecond), l.Burst)
}

// Client は1つのWebSocket接続。送信はバッファ付きチャネル経由で WritePump が行う
type Client struct {
	ID      string
	conn    Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(conn Conn, limiter *rate.Limiter, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		ID:      id,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: limiter,
		logger:  logger.With(zap.String("clientID", id)),
	}
}

// Send は送信キューに積む。閉じているかバッファが一杯なら false
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// ReadPump は接続が切れるまでメッセージを読み、handle に渡す
func (c *Client) ReadPump(ctx context.Context, handle func(ctx context.Context, raw []byte)) {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.keepAlive()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		handle(ctx, raw)
	}
}

// WritePump は送信キューの書き込みと定期的なPingを行う
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Info("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Info("ping failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}
