package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/OnAir/internal/client"
	"github.com/dkeye/OnAir/internal/protocol"
)

func newSubmitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <name> <text>...",
		Short: "Submit a message for moderation.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeSubmitMessage, Name: args[0], Message: strings.Join(args[1:], " ")},
				client.OfType(protocol.TypeMessageSubmitted))
		},
	}
}

func newApproveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending message.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeApproveMessage, MessageID: id},
				func(ev protocol.Event) bool {
					return ev.Type == protocol.TypeMessageApproved && ev.Message != nil && ev.Message.ID == id
				})
		},
	}
}

func newRejectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending message.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeRejectMessage, MessageID: id},
				func(ev protocol.Event) bool {
					return ev.Type == protocol.TypeMessageRejected && ev.MessageID == id
				})
		},
	}
}

func newMessagesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "Show the moderation queue and published messages.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, v, protocol.Command{Type: protocol.TypeGetMessages}, client.OfType(protocol.TypeMessagesData))
		},
	}
}

func newSayCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>...",
		Short: "Send a message as the moderator.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, v,
				protocol.Command{Type: protocol.TypeEditorMessage, Message: strings.Join(args, " ")},
				client.OfType(protocol.TypeEditorMessageReceived))
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return id, nil
}
