package media

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/domain"
)

var _ Feed = (*WHIPClient)(nil)

// WHIPClient publishes local tracks to a WHIP gateway. The gateway names the
// resulting channel; it is the last path segment of the session resource.
type WHIPClient struct {
	Endpoint string
	AuthKey  string
	HTTP     *http.Client
	NewConn  ConnFactory
	// Tracks are published as-is. When empty, a VP8 video track is created
	// and exposed through Video.
	Tracks []webrtc.TrackLocal

	mu       sync.Mutex
	conn     core.MediaConnection
	resource string
	channel  domain.ChannelID
	video    *webrtc.TrackLocalStaticRTP
}

func (w *WHIPClient) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return ErrAlreadyStarted
	}

	client := w.HTTP
	if client == nil {
		client = defaultHTTPClient()
	}
	factory := w.NewConn
	if factory == nil {
		factory = PionFactory(nil)
	}

	conn, err := factory("whip")
	if err != nil {
		return fmt.Errorf("whip: new peer connection: %w", err)
	}
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("whip: start: %w", err)
	}

	tracks := w.Tracks
	if len(tracks) == 0 {
		video, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "onair")
		if err != nil {
			conn.Close()
			return fmt.Errorf("whip: video track: %w", err)
		}
		w.video = video
		tracks = []webrtc.TrackLocal{video}
	}
	for _, t := range tracks {
		if _, err := conn.AddLocalTrack(t); err != nil {
			conn.Close()
			return fmt.Errorf("whip: add track %s: %w", t.ID(), err)
		}
	}

	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		conn.Close()
		return fmt.Errorf("whip: offer: %w", err)
	}
	res, err := exchangeSDP(ctx, client, w.Endpoint, w.AuthKey, offer.SDP)
	if err != nil {
		conn.Close()
		return fmt.Errorf("whip: %w", err)
	}
	if err := conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: res.Answer}); err != nil {
		conn.Close()
		_ = deleteResource(ctx, client, res.Resource, w.AuthKey)
		return fmt.Errorf("whip: apply answer: %w", err)
	}
	ch, err := channelIDFromResource(res.Resource)
	if err != nil {
		conn.Close()
		_ = deleteResource(ctx, client, res.Resource, w.AuthKey)
		return fmt.Errorf("whip: %w", err)
	}

	w.conn = conn
	w.resource = res.Resource
	w.channel = ch
	log.Info().Str("module", "media.whip").Str("channel", string(ch)).Str("resource", res.Resource).Msg("publishing")
	return nil
}

// Stop deletes the gateway resource and closes the peer connection.
func (w *WHIPClient) Stop(ctx context.Context) error {
	w.mu.Lock()
	conn, resource := w.conn, w.resource
	w.conn, w.resource = nil, ""
	w.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}
	defer conn.Close()

	client := w.HTTP
	if client == nil {
		client = defaultHTTPClient()
	}
	if err := deleteResource(ctx, client, resource, w.AuthKey); err != nil {
		log.Warn().Err(err).Str("module", "media.whip").Str("resource", resource).Msg("delete failed")
		return err
	}
	log.Info().Str("module", "media.whip").Str("channel", string(w.ChannelID())).Msg("stopped")
	return nil
}

// ChannelID is empty until Start succeeds.
func (w *WHIPClient) ChannelID() domain.ChannelID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.channel
}

// Video returns the default track created by Start, or nil.
func (w *WHIPClient) Video() *webrtc.TrackLocalStaticRTP {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.video
}
