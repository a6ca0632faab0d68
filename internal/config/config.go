package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/OnAir/internal/logging"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Log       logging.Config  `mapstructure:"log"`
	Media     MediaConfig     `mapstructure:"media"`
	Session   SessionConfig   `mapstructure:"session"`
}

type WebSocketConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

// MediaConfig points at the WHIP ingest and WHEP playback gateways.
type MediaConfig struct {
	WHIPGatewayURL   string   `mapstructure:"whip_gateway_url"`
	WHIPEndpointPath string   `mapstructure:"whip_endpoint_path"`
	WHIPAuthKey      string   `mapstructure:"whip_auth_key"`
	WHEPGatewayURL   string   `mapstructure:"whep_gateway_url"`
	WHEPAuthKey      string   `mapstructure:"whep_auth_key"`
	ICEServers       []string `mapstructure:"ice_servers"`
}

// WHIPEndpoint is the full URL participants POST their offer to.
func (m MediaConfig) WHIPEndpoint() string {
	return strings.TrimRight(m.WHIPGatewayURL, "/") + m.WHIPEndpointPath
}

type SessionConfig struct {
	CountdownSeconds    int           `mapstructure:"countdown_seconds"`
	MaxCountdownSeconds int           `mapstructure:"max_countdown_seconds"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	SubmitLimit         int           `mapstructure:"submit_limit"`
	SubmitInterval      time.Duration `mapstructure:"submit_interval"`
	KickSlowClients     bool          `mapstructure:"kick_slow_clients"`
}

const defaultWHIPGateway = "https://eyevinnlab-livevibe.eyevinn-smb-whip-bridge.auto.prod.osaas.io"

// Load reads an optional .env, then config/config.<CONFIG_ENV>.yaml.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile builds the config from defaults, the given file (if present) and
// the environment, in increasing priority.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Media.WHEPGatewayURL == "" {
		cfg.Media.WHEPGatewayURL = cfg.Media.WHIPGatewayURL
	}
	if cfg.Media.WHEPAuthKey == "" {
		cfg.Media.WHEPAuthKey = cfg.Media.WHIPAuthKey
	}
	if cfg.Session.MaxCountdownSeconds < cfg.Session.CountdownSeconds {
		cfg.Session.MaxCountdownSeconds = cfg.Session.CountdownSeconds
	}

	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("whip", cfg.Media.WHIPEndpoint()).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "onair-dev-secret")

	v.SetDefault("websocket.read_limit", 32768)
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "5s")
	v.SetDefault("websocket.send_buffer", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("log.service_name", "onair")

	v.SetDefault("media.whip_gateway_url", defaultWHIPGateway)
	v.SetDefault("media.whip_endpoint_path", "/api/v2/whip/sfu-broadcaster")
	v.SetDefault("media.whip_auth_key", "")
	v.SetDefault("media.whep_gateway_url", "")
	v.SetDefault("media.whep_auth_key", "")
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("session.countdown_seconds", 5)
	v.SetDefault("session.max_countdown_seconds", 60)
	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("session.submit_limit", 5)
	v.SetDefault("session.submit_interval", "10s")
	v.SetDefault("session.kick_slow_clients", false)
}

func bindEnv(v *viper.Viper) error {
	binds := map[string]string{
		"mode":                   "MODE",
		"port":                   "PORT",
		"static_path":            "STATIC_PATH",
		"secret":                 "SESSION_SECRET",
		"log.level":              "LOG_LEVEL",
		"log.pretty":             "LOG_PRETTY",
		"media.whip_gateway_url": "WHIP_GATEWAY_URL",
		"media.whip_auth_key":    "WHIP_AUTH_KEY",
		"media.whep_gateway_url": "WHEP_GATEWAY_URL",
		"media.whep_auth_key":    "WHEP_AUTH_KEY",
		"media.ice_servers":      "ICE_SERVERS",
	}
	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}
