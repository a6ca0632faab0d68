package onair

import (
	"slices"

	"github.com/dkeye/OnAir/internal/domain"
)

// Target is what a countdown puts on air when it reaches zero: one channel,
// or a set of channels when Channels is non-empty.
type Target struct {
	Channel  domain.ChannelID   `json:"channelId,omitempty"`
	Channels []domain.ChannelID `json:"channelIds,omitempty"`
}

func (t Target) IsMulti() bool { return len(t.Channels) > 0 }

func (t Target) IsZero() bool { return t.Channel == "" && len(t.Channels) == 0 }

// NewTarget prefers the multi form when ids are given.
func NewTarget(ch domain.ChannelID, chs []domain.ChannelID) Target {
	if chs = domain.NormalizeChannelIDs(chs); len(chs) > 0 {
		return Target{Channels: chs}
	}
	return Target{Channel: ch}
}

// Session is a snapshot of the running countdown.
type Session struct {
	Target    Target
	Remaining int
	Gen       uint64
}

// TickSource starts delivering ticks for generation gen and returns a function
// that stops them. Stop must be idempotent.
type TickSource func(gen uint64) (stop func())

// Countdown keeps at most one active session. Every start and cancel bumps the
// generation, so a tick stamped with an older generation is ignored even if it
// was already queued when the session ended.
type Countdown struct {
	ticks  TickSource
	gen    uint64
	active *Session
	stop   func()
}

func NewCountdown(ticks TickSource) *Countdown {
	return &Countdown{ticks: ticks}
}

// Start cancels any running session and begins a new one.
// It reports whether a previous session was cancelled.
func (c *Countdown) Start(target Target, seconds int) (Session, bool) {
	cancelled := c.Cancel()
	c.gen++
	c.active = &Session{
		Target:    Target{Channel: target.Channel, Channels: slices.Clone(target.Channels)},
		Remaining: seconds,
		Gen:       c.gen,
	}
	c.stop = c.ticks(c.gen)
	return *c.active, cancelled
}

// Cancel stops the running session. It reports false when nothing was active.
func (c *Countdown) Cancel() bool {
	if c.active == nil {
		return false
	}
	c.halt()
	return true
}

// Tick advances the session stamped gen by one second. ok is false for stale
// or unknown generations. done is true when the countdown reached zero; the
// session is already cleared at that point.
func (c *Countdown) Tick(gen uint64) (s Session, done bool, ok bool) {
	if c.active == nil || c.active.Gen != gen {
		return Session{}, false, false
	}
	c.active.Remaining--
	s = *c.active
	if s.Remaining <= 0 {
		s.Remaining = 0
		c.halt()
		return s, true, true
	}
	return s, false, true
}

// Resync overwrites the remaining seconds of the running session.
// done is true when seconds is not positive; the session is then cleared.
func (c *Countdown) Resync(seconds int) (s Session, done bool, ok bool) {
	if c.active == nil {
		return Session{}, false, false
	}
	c.active.Remaining = seconds
	s = *c.active
	if seconds <= 0 {
		s.Remaining = 0
		c.halt()
		return s, true, true
	}
	return s, false, true
}

func (c *Countdown) Active() (Session, bool) {
	if c.active == nil {
		return Session{}, false
	}
	return *c.active, true
}

func (c *Countdown) halt() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.active = nil
	c.gen++
}
