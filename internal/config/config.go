package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/voicedeck/voicedeck/internal/domain"
)

type Channel struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	// LiveKit media backend. Key/secret are only needed by the token service.
	LiveKitURL    string        `mapstructure:"livekit_url"`
	LiveKitKey    string        `mapstructure:"livekit_key"`
	LiveKitSecret string        `mapstructure:"livekit_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`

	// Client-side endpoints.
	DetailsEndpoint string `mapstructure:"details_endpoint"`
	RealtimeURL     string `mapstructure:"realtime_url"`

	IdentityFile string `mapstructure:"identity_file"`
	Secret       string `mapstructure:"secret"`

	Channels []Channel `mapstructure:"channels"`
}

// Rooms converts the configured channel list into domain rooms.
func (c *Config) Rooms() []domain.Room {
	out := make([]domain.Room, 0, len(c.Channels))
	for _, ch := range c.Channels {
		out = append(out, domain.Room{ID: domain.RoomID(ch.ID), Name: domain.RoomName(ch.Name)})
	}
	return out
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("livekit_url", "ws://localhost:7880")
	v.SetDefault("token_ttl", "2h")
	v.SetDefault("details_endpoint", "http://localhost:8080/api/connection-details")
	v.SetDefault("realtime_url", "ws://localhost:4000/socket/websocket")
	v.SetDefault("identity_file", "")
	v.SetDefault("channels", defaultChannels())

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// defaultChannels mirrors the stock voice channel list shown before any
// channels are created by hand.
func defaultChannels() []map[string]string {
	return []map[string]string{
		{"id": "general-voice", "name": "General"},
		{"id": "gaming-lounge", "name": "Gaming Lounge"},
		{"id": "study-hall", "name": "Study Hall"},
		{"id": "music-jam", "name": "Music Jam"},
		{"id": "dev-talk", "name": "Dev Talk"},
	}
}
