package game

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler はフェーズの締め切りタイマーを作る。テストでは手動で発火させる
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func SystemScheduler() Scheduler {
	return systemScheduler{}
}
