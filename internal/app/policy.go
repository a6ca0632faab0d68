package app

import "github.com/dkeye/OnAir/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a client that could not take a broadcast.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

// SimplePolicy skips the frame for slow clients, or disconnects them when
// Kick is set.
type SimplePolicy struct {
	Kick bool
}

func (p SimplePolicy) OnBackPressure(core.SessionID) BackpressureAction {
	if p.Kick {
		return KickMember
	}
	return DropFrame
}
