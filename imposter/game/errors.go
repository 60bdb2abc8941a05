package game

import "errors"

var (
	ErrRoomNotFound        = errors.New("Room not found")
	ErrUsernameTaken       = errors.New("Username already taken")
	ErrInsufficientPlayers = errors.New("Need at least 3 players to start")
	ErrNotHost             = errors.New("Only the host can do that")
	ErrInvalidUsername     = errors.New("Invalid username")
	ErrInvalidSettings     = errors.New("Invalid game settings")

	// 以下はクライアントに通知しない
	ErrInvalidPhaseAction  = errors.New("action does not apply to the current phase")
	ErrDuplicateSubmission = errors.New("already submitted for this round")
	ErrInvalidSubmission   = errors.New("submission rejected")
	ErrRoomClosed          = errors.New("room closed")
)

var userVisible = []error{
	ErrRoomNotFound,
	ErrUsernameTaken,
	ErrInsufficientPlayers,
	ErrNotHost,
	ErrInvalidUsername,
	ErrInvalidSettings,
}

// UserMessage はクライアントに error イベントとして返すべきエラーかを判定する
func UserMessage(err error) (string, bool) {
	for _, e := range userVisible {
		if errors.Is(err, e) {
			return e.Error(), true
		}
	}
	return "", false
}
