package game

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"time"
)

const (
	RoomCodeLength = 6
	// 紛らわしい文字（0, O, 1, I）は使わない
	RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateRoomCode はランダムなルームコードを生成する
func GenerateRoomCode() string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(RoomCodeChars))))
		if err != nil {
			code[i] = RoomCodeChars[rand.Intn(len(RoomCodeChars))]
			continue
		}
		code[i] = RoomCodeChars[n.Int64()]
	}
	return string(code)
}

// 乱数はお題とインポスターの選択、回答のシャッフルに使用
func createLocalRandGenerator() *rand.Rand {
	source := rand.NewSource(time.Now().UnixNano())
	return rand.New(source)
}
