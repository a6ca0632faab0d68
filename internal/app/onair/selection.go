// Package onair holds the on-air selection state machine and the countdown
// that stages a selection change. Neither type is safe for concurrent use;
// both are owned by the session loop.
package onair

import (
	"slices"

	"github.com/dkeye/OnAir/internal/domain"
)

// Machine tracks which channel(s) are on air. Single and multi mode are
// mutually exclusive: every transition replaces the whole state.
type Machine struct {
	cur domain.Selection
}

func NewMachine() *Machine {
	return &Machine{cur: domain.Selection{Mode: domain.SelectionNone}}
}

// Select puts exactly one channel on air.
func (m *Machine) Select(ch domain.ChannelID) domain.Selection {
	m.cur = domain.Selection{Mode: domain.SelectionSingle, Channel: ch}
	return m.Current()
}

// Deselect takes everything off air.
func (m *Machine) Deselect() domain.Selection {
	m.cur = domain.Selection{Mode: domain.SelectionNone}
	return m.Current()
}

// SelectMany puts a set of channels on air. An empty set is the same as Deselect.
func (m *Machine) SelectMany(chs []domain.ChannelID) domain.Selection {
	chs = domain.NormalizeChannelIDs(chs)
	if len(chs) == 0 {
		return m.Deselect()
	}
	m.cur = domain.Selection{Mode: domain.SelectionMulti, Channels: chs}
	return m.Current()
}

func (m *Machine) Current() domain.Selection {
	out := m.cur
	out.Channels = slices.Clone(m.cur.Channels)
	return out
}

// IsSelected reports whether ch is the single on-air channel.
func (m *Machine) IsSelected(ch domain.ChannelID) bool {
	return m.cur.Mode == domain.SelectionSingle && m.cur.Channel == ch
}
