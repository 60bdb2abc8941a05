package repository

import "time"

// テストで時刻を固定できるようにする
var timeNow = func() time.Time {
	return time.Now().UTC()
}
