// Package media holds the ingest (WHIP) and playback (WHEP) collaborators.
// The session core only sees them through Feed.
package media

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/OnAir/internal/adapters/rtc"
	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/domain"
)

var (
	ErrNoLocation          = errors.New("gateway answer has no Location header")
	ErrUnexpectedStatus    = errors.New("unexpected gateway status")
	ErrNotStarted          = errors.New("feed not started")
	ErrAlreadyStarted      = errors.New("feed already started")
	ErrMissingChannel      = errors.New("channel id is required")
	ErrNoChannelInResource = errors.New("cannot derive channel id from resource")
)

// Feed is a capability object for one media session.
type Feed interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ChannelID() domain.ChannelID
}

// ConnFactory creates the peer connection used by a feed.
type ConnFactory func(label string) (core.MediaConnection, error)

// PionFactory returns a factory backed by real pion peer connections.
func PionFactory(iceServers []string) ConnFactory {
	cfg := rtc.ConfigFromURLs(iceServers)
	return func(label string) (core.MediaConnection, error) {
		return rtc.NewPeerConnection(cfg, label)
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
