package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/OnAir/internal/client"
	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/media"
	"github.com/dkeye/OnAir/internal/protocol"
)

func newParticipantCmd(v *viper.Viper) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Run a headless participant: publish over WHIP and follow the session.",
		Long: `Publishes a feed to the WHIP gateway (unless --channel names an existing
one), announces it with participantJoin and reports on-air, countdown and
pairing changes. While paired, the partner feed is played over WHEP.
Interrupting the command sends participantLeave and ends the WHIP session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			factory := media.PionFactory(v.GetStringSlice(iceServersKey))

			self := domain.ChannelID(channel)
			if self == "" {
				endpoint := v.GetString(whipURLKey)
				if endpoint == "" {
					return errors.New("--whip-endpoint or --channel is required")
				}
				w := &media.WHIPClient{Endpoint: endpoint, AuthKey: v.GetString(whipAuthKey), NewConn: factory}
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = w.Stop(stopCtx)
				}()
				self = w.ChannelID()
			}
			fmt.Fprintf(out, "publishing as channel %s\n", self)

			var packets atomic.Int64
			var p *participant
			p = newParticipant(self, out, func(ch domain.ChannelID) media.Feed {
				return &media.WHEPPlayer{
					Gateway: v.GetString(whepGatewayKey),
					AuthKey: v.GetString(whepAuthKey),
					Channel: ch,
					NewConn: factory,
					OnPacket: func(webrtc.RTPCodecType, *rtp.Packet) {
						packets.Add(1)
					},
					OnEnded: func() { p.playerEnded(ch) },
				}
			})

			c := client.New(v.GetString(serverKey))
			c.OnConnect = func(ctx context.Context, c *client.Client) error {
				return c.Send(protocol.Command{Type: protocol.TypeParticipantJoin, ChannelID: self})
			}
			c.OnEvent = func(ev protocol.Event) { p.handle(ctx, ev) }

			err := c.Run(ctx)

			leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, lerr := client.Once(leaveCtx, v.GetString(serverKey),
				protocol.Command{Type: protocol.TypeParticipantLeave, ChannelID: self}, nil); lerr != nil {
				log.Warn().Err(lerr).Str("module", "cli").Msg("participantLeave not delivered")
			}
			p.close(leaveCtx)
			fmt.Fprintf(out, "left; %d partner packets received\n", packets.Load())

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&channel, "channel", "", "use an existing channel id instead of publishing")
	f.String("whip-endpoint", "", "full WHIP endpoint URL")
	f.String("whip-key", "", "WHIP bearer key")
	f.StringSlice("ice", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	mustBind(v, whipURLKey, f.Lookup("whip-endpoint"))
	mustBind(v, whipAuthKey, f.Lookup("whip-key"))
	mustBind(v, iceServersKey, f.Lookup("ice"))
	return cmd
}

// participant reacts to session events on behalf of one published channel.
type participant struct {
	self      domain.ChannelID
	out       io.Writer
	newPlayer func(domain.ChannelID) media.Feed

	mu     sync.Mutex
	onAir  bool
	player media.Feed
}

func newParticipant(self domain.ChannelID, out io.Writer, newPlayer func(domain.ChannelID) media.Feed) *participant {
	return &participant{self: self, out: out, newPlayer: newPlayer}
}

func (p *participant) handle(ctx context.Context, ev protocol.Event) {
	switch ev.Type {
	case protocol.TypeChannelSelected:
		p.setOnAir(ev.ChannelID == p.self)
	case protocol.TypeMultipleChannelsSelected:
		p.setOnAir(slices.Contains(ev.ChannelIDs, p.self))
	case protocol.TypeChannelDeselected:
		p.setOnAir(false)
	case protocol.TypeCountdownStart, protocol.TypeCountdownUpdate:
		if p.targeted(ev) {
			fmt.Fprintf(p.out, "on air in %d\n", ev.Seconds)
		}
	case protocol.TypeCountdownCancelled:
		if p.targeted(ev) {
			fmt.Fprintln(p.out, "countdown cancelled")
		}
	case protocol.TypeParticipantPaired:
		pair := domain.Pairing{ParticipantA: ev.ParticipantA, ParticipantB: ev.ParticipantB}
		if partner, ok := pair.Partner(p.self); ok {
			p.watch(ctx, partner)
		} else {
			p.unwatch(ctx)
		}
	case protocol.TypeParticipantUnpaired:
		pair := domain.Pairing{ParticipantA: ev.ParticipantA, ParticipantB: ev.ParticipantB}
		if pair.Involves(p.self) || pair == (domain.Pairing{}) {
			p.unwatch(ctx)
		}
	case protocol.TypeMessageApproved, protocol.TypeEditorMessageReceived:
		if ev.Message != nil {
			fmt.Fprintf(p.out, "[%s] %s\n", ev.Message.Name, ev.Message.Text)
		}
	}
}

func (p *participant) targeted(ev protocol.Event) bool {
	return ev.ChannelID == p.self || slices.Contains(ev.ChannelIDs, p.self)
}

func (p *participant) setOnAir(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onAir == on {
		return
	}
	p.onAir = on
	if on {
		fmt.Fprintln(p.out, "ON AIR")
	} else {
		fmt.Fprintln(p.out, "off air")
	}
}

func (p *participant) watch(ctx context.Context, partner domain.ChannelID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil && p.player.ChannelID() == partner {
		return
	}
	p.stopPlayerLocked(ctx)

	player := p.newPlayer(partner)
	if err := player.Start(ctx); err != nil {
		fmt.Fprintf(p.out, "cannot play partner %s: %v\n", partner, err)
		return
	}
	p.player = player
	fmt.Fprintf(p.out, "paired with %s\n", partner)
}

func (p *participant) unwatch(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return
	}
	p.stopPlayerLocked(ctx)
	fmt.Fprintln(p.out, "unpaired")
}

// playerEnded forgets a partner player whose connection dropped on its own.
func (p *participant) playerEnded(ch domain.ChannelID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil || p.player.ChannelID() != ch {
		return
	}
	p.player = nil
	fmt.Fprintf(p.out, "partner %s feed ended\n", ch)
}

func (p *participant) close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopPlayerLocked(ctx)
}

func (p *participant) stopPlayerLocked(ctx context.Context) {
	if p.player == nil {
		return
	}
	if err := p.player.Stop(ctx); err != nil {
		log.Debug().Err(err).Str("module", "cli").Msg("stop partner player")
	}
	p.player = nil
}
