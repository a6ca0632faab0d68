package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/core"
)

var ErrUnknownSession = errors.New("unknown session")

type sessionEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry is the broadcast set: every connected client regardless of role.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

// Register adds a connection. Registering an existing sid replaces it.
func (r *Registry) Register(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("clients", len(r.sessions)).Msg("registered")
}

// Unregister removes sid. It reports false if sid was not registered.
func (r *Registry) Unregister(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("clients", len(r.sessions)).Msg("unregistered")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send delivers a frame to one session.
func (r *Registry) Send(sid core.SessionID, frame core.Frame) error {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}
	return e.Conn.TrySend(frame)
}

// Broadcast sends the same frame to every registered connection. Failed
// sends are reported, never retried.
func (r *Registry) Broadcast(frame core.Frame) core.PublishResult {
	r.mu.RLock()
	targets := make(map[core.SessionID]core.SignalConnection, len(r.sessions))
	for sid, e := range r.sessions {
		targets[sid] = e.Conn
	}
	r.mu.RUnlock()

	var res core.PublishResult
	for sid, conn := range targets {
		if err := conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	return res
}

// Cancel closes the connection and cancels its context so both pumps exit.
// The session stays registered until the read pump reports the disconnect.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Conn.Close()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
