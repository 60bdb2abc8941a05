package connection

import (
	"encoding/json"
	"testing"
	"time"

	"imposterserver/imposter/protocol"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Conn ---

type MockConn struct {
	mock.Mock
}

func (m *MockConn) ReadMessage() (int, []byte, error) {
	args := m.Called()
	data, _ := args.Get(1).([]byte)
	return args.Int(0), data, args.Error(2)
}

func (m *MockConn) WriteMessage(messageType int, data []byte) error {
	args := m.Called(messageType, data)
	return args.Error(0)
}

func (m *MockConn) SetReadLimit(limit int64) {
	m.Called(limit)
}

func (m *MockConn) SetReadDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockConn) SetWriteDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockConn) SetPongHandler(h func(appData string) error) {
	m.Called(h)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

// newTestClient はポンプを動かさないクライアント。送信内容は drain で取り出す
func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn := &MockConn{}
	conn.On("Close").Return(nil).Maybe()
	return NewClient(conn, nil, zap.NewNop())
}

func drain(t *testing.T, c *Client) []protocol.Envelope {
	t.Helper()
	var envs []protocol.Envelope
	for {
		select {
		case frame := <-c.send:
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func ofType(envs []protocol.Envelope, t protocol.MessageType) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range envs {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}
