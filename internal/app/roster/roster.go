// Package roster tracks which participant feeds are live and the optional
// pairing between two of them.
package roster

import (
	"errors"
	"slices"

	"github.com/dkeye/OnAir/internal/domain"
)

var (
	ErrSelfPair = errors.New("cannot pair a channel with itself")
	ErrNotLive  = errors.New("channel is not live")
)

// Roster is owned by the session loop and is not safe for concurrent use.
type Roster struct {
	order   []domain.ChannelID
	live    map[domain.ChannelID]struct{}
	pairing *domain.Pairing
}

func New() *Roster {
	return &Roster{live: make(map[domain.ChannelID]struct{})}
}

// Join registers ch. It reports false when ch was already live.
func (r *Roster) Join(ch domain.ChannelID) bool {
	if _, ok := r.live[ch]; ok {
		return false
	}
	r.live[ch] = struct{}{}
	r.order = append(r.order, ch)
	return true
}

// Leave unregisters ch. When ch was part of the pairing the pairing is
// dissolved and returned as dropped.
func (r *Roster) Leave(ch domain.ChannelID) (existed bool, dropped *domain.Pairing) {
	if _, ok := r.live[ch]; ok {
		delete(r.live, ch)
		r.order = slices.DeleteFunc(r.order, func(c domain.ChannelID) bool { return c == ch })
		existed = true
	}
	if r.pairing != nil && r.pairing.Involves(ch) {
		dropped = r.pairing
		r.pairing = nil
	}
	return existed, dropped
}

func (r *Roster) Has(ch domain.ChannelID) bool {
	_, ok := r.live[ch]
	return ok
}

// Channels returns live channels in join order.
func (r *Roster) Channels() []domain.ChannelID {
	return slices.Clone(r.order)
}

// Pair links a and b, replacing any existing pairing. Both must be live.
func (r *Roster) Pair(a, b domain.ChannelID) (domain.Pairing, error) {
	if a == b {
		return domain.Pairing{}, ErrSelfPair
	}
	if !r.Has(a) || !r.Has(b) {
		return domain.Pairing{}, ErrNotLive
	}
	p := domain.Pairing{ParticipantA: a, ParticipantB: b}
	r.pairing = &p
	return p, nil
}

// Unpair clears the pairing. It reports false when there was none.
func (r *Roster) Unpair() (domain.Pairing, bool) {
	if r.pairing == nil {
		return domain.Pairing{}, false
	}
	p := *r.pairing
	r.pairing = nil
	return p, true
}

func (r *Roster) Pairing() (domain.Pairing, bool) {
	if r.pairing == nil {
		return domain.Pairing{}, false
	}
	return *r.pairing, true
}
