// Package rtc wraps a pion PeerConnection as the offering side of a
// WHIP ingest or WHEP playback session.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/core"
)

var _ core.MediaConnection = (*PeerConnection)(nil)

type PeerConnection struct {
	pc    *webrtc.PeerConnection
	label string

	mu        sync.Mutex
	cancel    context.CancelFunc
	closed    bool
	closeOnce sync.Once

	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
}

const defaultSTUN = "stun:stun.l.google.com:19302"

// ConfigFromURLs builds a configuration with one ICE server per URL.
// An empty list falls back to a public STUN server.
func ConfigFromURLs(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		urls = []string{defaultSTUN}
	}
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// NewPeerConnection creates the underlying pion connection. label only
// shows up in logs ("whip", "whep:<channel>", ...).
func NewPeerConnection(cfg webrtc.Configuration, label string) (*PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &PeerConnection{pc: pc, label: label}, nil
}

func (c *PeerConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", c.label).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", c.label).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", c.label).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return nil
}

// CreateAndSetOffer waits for ICE gathering so the offer carries every
// candidate; WHIP/WHEP have no trickle channel here.
func (c *PeerConnection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return c.pc.LocalDescription(), nil
}

func (c *PeerConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *PeerConnection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *PeerConnection) AddReceiver(kind webrtc.RTPCodecType) error {
	_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (c *PeerConnection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", c.label).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("peer", c.label).Msg("closed")
	}
	c.fireClosed()
}

// OnTrack sets application-level callback for remote tracks.
func (c *PeerConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

// OnClosed sets a callback run once when the connection goes away.
func (c *PeerConnection) OnClosed(fn func()) { c.onClosed = fn }

func (c *PeerConnection) fireClosed() {
	c.closeOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}
