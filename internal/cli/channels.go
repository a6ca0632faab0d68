package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/OnAir/internal/media"
)

func newChannelsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List live channels known to the WHEP gateway.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw := v.GetString(whepGatewayKey)
			if gw == "" {
				return errors.New("--whep-gateway (or WHEP_GATEWAY_URL) is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration(timeoutKey))
			defer cancel()

			dir := &media.Directory{Gateway: gw, AuthKey: v.GetString(whepAuthKey)}
			chs, err := dir.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ch := range chs {
				fmt.Fprintf(out, "%s\t%s\n", ch.ID, ch.PlaybackURL)
			}
			return nil
		},
	}
}
