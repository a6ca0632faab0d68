package http

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/adapters/signal"
	"github.com/dkeye/OnAir/internal/app/orch"
	"github.com/dkeye/OnAir/internal/config"
	"github.com/dkeye/OnAir/internal/logging"
	"github.com/dkeye/OnAir/internal/media"
)

const clientTokenKey = "ct"

// ChannelLister is the WHEP gateway channel directory.
type ChannelLister interface {
	List(ctx context.Context) ([]media.Channel, error)
}

// ClientTokenMiddleware keeps a per-browser token in the cookie session.
// It only tags logs; it is not an identity.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(logging.FieldClientToken, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, dir ChannelLister) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(log.Logger))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("OnAirSessions", store))
	r.Use(ClientTokenMiddleware())

	ctl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:      cfg.WebSocket.ReadLimit,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		SubmitLimit:    cfg.Session.SubmitLimit,
		SubmitInterval: cfg.Session.SubmitInterval,
	})
	ws := func(c *gin.Context) { ctl.HandleSignal(ctx, c) }

	r.Static("/static", cfg.StaticPath)
	page := func(name string) gin.HandlerFunc {
		file := filepath.Join(cfg.StaticPath, name)
		return func(c *gin.Context) { c.File(file) }
	}

	// Browser pages open the socket on the page host root.
	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			ws(c)
			return
		}
		c.Redirect(http.StatusFound, "/join")
	})
	r.GET("/join", page("index.html"))
	r.GET("/editor", page("editor.html"))
	r.GET("/source", page("source.html"))
	r.GET("/config.js", configJS(cfg.Media))
	r.GET("/ws", ws)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		v, err := o.State(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, v)
	})
	api.GET("/messages", func(c *gin.Context) {
		d, err := o.Messages(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d)
	})
	api.GET("/channels", func(c *gin.Context) {
		if dir == nil {
			c.JSON(http.StatusOK, gin.H{"channels": []media.Channel{}})
			return
		}
		chs, err := dir.List(c.Request.Context())
		if err != nil {
			logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("channel list")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"channels": chs})
	})

	return r
}

// configJS exposes the gateway settings to browser pages as globals.
func configJS(m config.MediaConfig) gin.HandlerFunc {
	lines := []string{
		"window.WHIP_GATEWAY_URL = " + jsString(m.WHIPEndpoint()) + ";",
		"window.WHIP_AUTH_KEY = " + jsString(m.WHIPAuthKey) + ";",
		"window.WHEP_GATEWAY_URL = " + jsString(m.WHEPGatewayURL) + ";",
		"window.WHEP_AUTH_KEY = " + jsString(m.WHEPAuthKey) + ";",
	}
	body := strings.Join(lines, "\n")
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(body))
	}
}

// jsString renders s as a JS string literal, or null when empty.
func jsString(s string) string {
	if s == "" {
		return "null"
	}
	b, _ := json.Marshal(s)
	return string(b)
}
