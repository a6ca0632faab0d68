package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/domain"
)

var _ Feed = (*WHEPPlayer)(nil)

// PacketHandler receives every RTP packet of a played feed.
type PacketHandler func(kind webrtc.RTPCodecType, pkt *rtp.Packet)

// WHEPPlayer plays one channel from a WHEP gateway.
type WHEPPlayer struct {
	Gateway string
	AuthKey string
	Channel domain.ChannelID
	// URL overrides the playback URL derived from Gateway and Channel.
	URL      string
	HTTP     *http.Client
	NewConn  ConnFactory
	OnPacket PacketHandler
	// OnEnded runs when the connection drops without Stop being called.
	OnEnded func()

	mu       sync.Mutex
	conn     core.MediaConnection
	resource string
}

// PlaybackURL is <gateway>/whep/<channel> unless URL is set.
func (p *WHEPPlayer) PlaybackURL() string {
	if p.URL != "" {
		return p.URL
	}
	return PlaybackURL(p.Gateway, p.Channel)
}

func PlaybackURL(gateway string, ch domain.ChannelID) string {
	return strings.TrimRight(gateway, "/") + "/whep/" + string(ch)
}

func (p *WHEPPlayer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return ErrAlreadyStarted
	}
	if p.Channel == "" && p.URL == "" {
		return ErrMissingChannel
	}

	client := p.HTTP
	if client == nil {
		client = defaultHTTPClient()
	}
	factory := p.NewConn
	if factory == nil {
		factory = PionFactory(nil)
	}

	conn, err := factory("whep:" + string(p.Channel))
	if err != nil {
		return fmt.Errorf("whep: new peer connection: %w", err)
	}
	conn.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go p.readTrack(trackCtx, track)
	})
	conn.OnClosed(func() { p.ended(conn) })
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("whep: start: %w", err)
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if err := conn.AddReceiver(kind); err != nil {
			conn.Close()
			return fmt.Errorf("whep: add %s receiver: %w", kind, err)
		}
	}

	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		conn.Close()
		return fmt.Errorf("whep: offer: %w", err)
	}
	res, err := exchangeSDP(ctx, client, p.PlaybackURL(), p.AuthKey, offer.SDP)
	if err != nil {
		conn.Close()
		return fmt.Errorf("whep: %w", err)
	}
	if err := conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: res.Answer}); err != nil {
		conn.Close()
		_ = deleteResource(ctx, client, res.Resource, p.AuthKey)
		return fmt.Errorf("whep: apply answer: %w", err)
	}

	p.conn = conn
	p.resource = res.Resource
	log.Info().Str("module", "media.whep").Str("channel", string(p.Channel)).Msg("playing")
	return nil
}

func (p *WHEPPlayer) Stop(ctx context.Context) error {
	p.mu.Lock()
	conn, resource := p.conn, p.resource
	p.conn, p.resource = nil, ""
	p.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}
	defer conn.Close()

	client := p.HTTP
	if client == nil {
		client = defaultHTTPClient()
	}
	if err := deleteResource(ctx, client, resource, p.AuthKey); err != nil {
		log.Warn().Err(err).Str("module", "media.whep").Str("resource", resource).Msg("delete failed")
		return err
	}
	log.Info().Str("module", "media.whep").Str("channel", string(p.Channel)).Msg("stopped")
	return nil
}

func (p *WHEPPlayer) ChannelID() domain.ChannelID { return p.Channel }

// ended handles a connection that went away on its own. Connections closed
// by Stop or by a failed Start are no longer current and are ignored.
func (p *WHEPPlayer) ended(conn core.MediaConnection) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	resource := p.resource
	p.conn, p.resource = nil, ""
	p.mu.Unlock()

	log.Warn().Str("module", "media.whep").Str("channel", string(p.Channel)).Msg("playback ended")
	client := p.HTTP
	if client == nil {
		client = defaultHTTPClient()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := deleteResource(ctx, client, resource, p.AuthKey); err != nil {
		log.Debug().Err(err).Str("module", "media.whep").Str("resource", resource).Msg("delete after drop")
	}
	if p.OnEnded != nil {
		p.OnEnded()
	}
}

func (p *WHEPPlayer) readTrack(ctx context.Context, track *webrtc.TrackRemote) {
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "media.whep").Str("channel", string(p.Channel)).Msg("track read ended")
			}
			return
		}
		if p.OnPacket != nil {
			p.OnPacket(track.Kind(), pkt)
		}
	}
}
