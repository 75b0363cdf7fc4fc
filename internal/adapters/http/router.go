package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/config"
)

// ConnectionDetails is the payload clients feed straight into the media SDK.
type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	ParticipantToken string `json:"participantToken"`
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoicedeckSessions", store))
	r.Use(ClientTokenMiddleware())

	limiter := NewTokenRateLimiter(30, time.Minute)

	api := r.Group("/api")
	api.GET("/connection-details", handleConnectionDetails(cfg, limiter))
	api.GET("/rooms", handleRooms(cfg))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// handleConnectionDetails mints a room-join token for the requested room and
// participant. The region parameter is accepted for parity with hosted
// deployments but a single-node setup ignores it.
func handleConnectionDetails(cfg *config.Config, limiter *TokenRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomName := c.Query("roomName")
		participantName := c.Query("participantName")
		if roomName == "" || participantName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomName and participantName are required"})
			return
		}

		if token := c.GetString("client_token"); !limiter.Allow(token) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many token requests"})
			return
		}

		token, err := signToken(cfg, roomName, participantName)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("room", roomName).Msg("token minting failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "can't make token"})
			return
		}

		log.Info().Str("module", "adapters.http").Str("room", roomName).Str("participant", participantName).Msg("connection details issued")
		c.JSON(http.StatusOK, ConnectionDetails{
			ServerURL:        cfg.LiveKitURL,
			ParticipantToken: token,
		})
	}
}

func handleRooms(cfg *config.Config) gin.HandlerFunc {
	type roomInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	return func(c *gin.Context) {
		out := make([]roomInfo, 0, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			out = append(out, roomInfo{ID: ch.ID, Name: ch.Name})
		}
		c.JSON(http.StatusOK, out)
	}
}

func signToken(cfg *config.Config, room, identity string) (string, error) {
	canPublish := true
	canSubscribe := true

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	at := auth.NewAccessToken(cfg.LiveKitKey, cfg.LiveKitSecret)
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         room,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(identity).
		SetValidFor(ttl)

	return at.ToJWT()
}
