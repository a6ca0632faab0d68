package cli

import (
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/OnAir/internal/client"
	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/protocol"
)

func newSelectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "select <channel>",
		Short: "Put one channel on air.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := domain.ChannelID(args[0])
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeSelectChannel, ChannelID: ch},
				func(ev protocol.Event) bool {
					return ev.Type == protocol.TypeChannelSelected && ev.ChannelID == ch
				})
		},
	}
}

func newDeselectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "deselect",
		Short: "Take everything off air.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeDeselectChannel},
				client.OfType(protocol.TypeChannelDeselected))
		},
	}
}

func newSelectManyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "select-many <channel>...",
		Short: "Put several channels on air at once.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chs := domain.NormalizeChannelIDs(toChannels(args))
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeSelectMultipleChannels, ChannelIDs: chs},
				func(ev protocol.Event) bool {
					return ev.Type == protocol.TypeMultipleChannelsSelected && slices.Equal(ev.ChannelIDs, chs)
				})
		},
	}
}

func newCountdownCmd(v *viper.Viper) *cobra.Command {
	var seconds int
	cmd := &cobra.Command{
		Use:   "countdown <channel>...",
		Short: "Start a countdown that puts the channel(s) on air at zero.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := protocol.Command{Type: protocol.TypeStartCountdown}
			if seconds > 0 {
				c.Seconds = protocol.IntPtr(seconds)
			}
			if len(args) == 1 {
				c.ChannelID = domain.ChannelID(args[0])
			} else {
				c.ChannelIDs = toChannels(args)
			}
			return oneShot(cmd, v, c, client.OfType(protocol.TypeCountdownStart))
		},
	}
	cmd.Flags().IntVarP(&seconds, "seconds", "s", 0, "countdown length (server default when 0)")
	return cmd
}

func newCancelCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running countdown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, v, protocol.Command{Type: protocol.TypeCancelCountdown}, nil)
		},
	}
}

func newPairCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <channelA> <channelB>",
		Short: "Pair two live participants.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b := domain.ChannelID(args[0]), domain.ChannelID(args[1])
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypePairParticipants, ParticipantA: a, ParticipantB: b},
				func(ev protocol.Event) bool {
					return ev.Type == protocol.TypeParticipantPaired && ev.ParticipantA == a && ev.ParticipantB == b
				})
		},
	}
}

func newUnpairCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Dissolve the current pairing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, v, protocol.Command{Type: protocol.TypeUnpairParticipants}, nil)
		},
	}
}

func toChannels(args []string) []domain.ChannelID {
	out := make([]domain.ChannelID, 0, len(args))
	for _, a := range args {
		out = append(out, domain.ChannelID(a))
	}
	return out
}
