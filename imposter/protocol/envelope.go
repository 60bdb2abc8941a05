// Package protocol はクライアントとサーバー間の JSON エンベロープ {type, data} を定義します。
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage はJSONが壊れている、typeが未知、dataの型が合わない場合
var ErrMalformedMessage = errors.New("Invalid message format")

type MessageType string

// クライアント → サーバー
const (
	JoinRoom       MessageType = "joinRoom"
	StartGame      MessageType = "startGame"
	SendAnswer     MessageType = "sendAnswer"
	SendVote       MessageType = "sendVote"
	SendMessage    MessageType = "sendMessage"
	UpdateSettings MessageType = "updateSettings"
)

// サーバー → クライアント
const (
	RoomUpdate      MessageType = "roomUpdate"
	GameStateUpdate MessageType = "gameStateUpdate"
	Error           MessageType = "error"
)

var intents = map[MessageType]bool{
	JoinRoom:       true,
	StartGame:      true,
	SendAnswer:     true,
	SendVote:       true,
	SendMessage:    true,
	UpdateSettings: true,
}

type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode はクライアントからのフレームを検証する。data の中身は Bind で取り出す
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !intents[env.Type] {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
	return &env, nil
}

// Bind は data を v にデコードする。未知のフィールドは拒否
func (e *Envelope) Bind(v interface{}) error {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: missing data for %s", ErrMalformedMessage, e.Type)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

// New はサーバーから送るエンベロープを作る
func New(t MessageType, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Data: raw}, nil
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func NewError(message string) Envelope {
	env, _ := New(Error, ErrorData{Message: message})
	return env
}
