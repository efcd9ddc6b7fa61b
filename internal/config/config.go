package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Typing    TypingConfig    `mapstructure:"typing"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Profile   ProfileConfig   `mapstructure:"profile"`
}

// ServerConfig holds the local HTTP facade configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// UpstreamConfig points at the IM API the engine synchronizes with
type UpstreamConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	WSURL          string        `mapstructure:"ws_url"`
	PlatformId     int           `mapstructure:"platform_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Token is an optional credential to connect with at startup
	Token string `mapstructure:"token"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// SyncConfig tunes the reconciliation store
type SyncConfig struct {
	PageSize         int           `mapstructure:"page_size"`
	EchoWindow       time.Duration `mapstructure:"echo_window"`
	MaxConversations int           `mapstructure:"max_conversations"`
	ResyncTimeout    time.Duration `mapstructure:"resync_timeout"`
	ResyncParallel   int           `mapstructure:"resync_parallel"`
}

// TypingConfig tunes the typing aggregator
type TypingConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// ReconnectConfig bounds the reconnect backoff
type ReconnectConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxAttempts     uint          `mapstructure:"max_attempts"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProfileConfig sizes the participant profile cache
type ProfileConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults fills every zero value with its default
func (cfg *Config) SetDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8090
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Upstream.PlatformId == 0 {
		cfg.Upstream.PlatformId = constant.PlatformIdWeb
	}
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = 10 * time.Second
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.HandshakeTimeout == 0 {
		cfg.WebSocket.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = 27 * time.Second
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 30
	}
	if cfg.Sync.EchoWindow == 0 {
		cfg.Sync.EchoWindow = 30 * time.Second
	}
	if cfg.Sync.ResyncTimeout == 0 {
		cfg.Sync.ResyncTimeout = 30 * time.Second
	}
	if cfg.Sync.ResyncParallel == 0 {
		cfg.Sync.ResyncParallel = 4
	}
	if cfg.Typing.TTL == 0 {
		cfg.Typing.TTL = 5 * time.Second
	}
	if cfg.Typing.RefreshInterval == 0 {
		cfg.Typing.RefreshInterval = 3 * time.Second
	}
	if cfg.Typing.IdleTimeout == 0 {
		cfg.Typing.IdleTimeout = 4 * time.Second
	}
	if cfg.Typing.SweepInterval == 0 {
		cfg.Typing.SweepInterval = time.Second
	}
	if cfg.Reconnect.InitialInterval == 0 {
		cfg.Reconnect.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Reconnect.MaxInterval == 0 {
		cfg.Reconnect.MaxInterval = 30 * time.Second
	}
	if cfg.Reconnect.Multiplier == 0 {
		cfg.Reconnect.Multiplier = 2
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 8
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "nexosync:"
	}
	if cfg.Redis.PresenceTTL == 0 {
		cfg.Redis.PresenceTTL = 2 * time.Minute
	}
	if cfg.Profile.CacheSize == 0 {
		cfg.Profile.CacheSize = 1024
	}
	if cfg.Profile.CacheTTL == 0 {
		cfg.Profile.CacheTTL = 10 * time.Minute
	}
}
