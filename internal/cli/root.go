// Package cli implements onairctl, the operator command line for a running
// OnAir server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/OnAir/internal/client"
	"github.com/dkeye/OnAir/internal/logging"
	"github.com/dkeye/OnAir/internal/protocol"
)

const (
	serverKey      = "server"
	timeoutKey     = "timeout"
	logLevelKey    = "log_level"
	whipURLKey     = "whip_endpoint"
	whipAuthKey    = "whip_auth_key"
	whepGatewayKey = "whep_gateway_url"
	whepAuthKey    = "whep_auth_key"
	iceServersKey  = "ice_servers"
)

// installLogger replaces the process logger. Tests that run a server in the
// same process swap it out.
var installLogger = func(cfg logging.Config, w io.Writer) {
	logging.InitTo(cfg, w)
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "onairctl",
		Short:         "Control and feed a running OnAir session.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, cfgFile); err != nil {
				return err
			}
			installLogger(logging.Config{Level: v.GetString(logLevelKey), Pretty: true, ServiceName: "onairctl"}, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml)")
	pf.String("server", "ws://localhost:3000/ws", "session WebSocket URL")
	pf.Duration("timeout", 10*time.Second, "how long one-shot commands wait for a reply")
	pf.String("log-level", "warn", "log level")
	pf.String("whep-gateway", "", "WHEP gateway base URL")
	pf.String("whep-key", "", "WHEP bearer key")

	mustBind(v, serverKey, pf.Lookup("server"))
	mustBind(v, timeoutKey, pf.Lookup("timeout"))
	mustBind(v, logLevelKey, pf.Lookup("log-level"))
	mustBind(v, whepGatewayKey, pf.Lookup("whep-gateway"))
	mustBind(v, whepAuthKey, pf.Lookup("whep-key"))

	root.AddCommand(
		newSelectCmd(v),
		newDeselectCmd(v),
		newSelectManyCmd(v),
		newCountdownCmd(v),
		newCancelCmd(v),
		newSubmitCmd(v),
		newApproveCmd(v),
		newRejectCmd(v),
		newMessagesCmd(v),
		newSayCmd(v),
		newPairCmd(v),
		newUnpairCmd(v),
		newChannelsCmd(v),
		newParticipantCmd(v),
	)
	return root
}

// Execute runs the CLI against os.Args.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("ONAIRCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// the gateway variables keep the names the server uses
	for key, env := range map[string]string{
		whepGatewayKey: "WHEP_GATEWAY_URL",
		whepAuthKey:    "WHEP_AUTH_KEY",
		whipAuthKey:    "WHIP_AUTH_KEY",
	} {
		if err := v.BindEnv(key, "ONAIRCTL_"+strings.ToUpper(key), env); err != nil {
			return err
		}
	}

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

func mustBind(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// oneShot sends c and, if until is set, prints the matching reply.
func oneShot(cmd *cobra.Command, v *viper.Viper, c protocol.Command, until client.Matcher) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration(timeoutKey))
	defer cancel()

	ev, err := client.Once(ctx, v.GetString(serverKey), c, until)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no reply to %s within %s", c.Type, v.GetDuration(timeoutKey))
		}
		return err
	}
	if until == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", c.Type)
		return nil
	}
	return printJSON(cmd.OutOrStdout(), ev)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
