// Package config provides Viper-based configuration loading for the quiz room
// server.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override
const EnvPrefix = "QUIZ"

// Scoring modes
const (
	ScoringServer = "server"
	ScoringClient = "client"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RoomsConfig holds room registry and lifecycle settings.
type RoomsConfig struct {
	// MaxPlayers is the roster capacity of every room.
	MaxPlayers int `mapstructure:"max_players"`
	// MaxRooms caps the number of live rooms. 0 means unlimited.
	MaxRooms int `mapstructure:"max_rooms"`
	// CodeLength is the number of characters in a room code.
	CodeLength int `mapstructure:"code_length"`
	// MailboxSize is the number of operations a room buffers.
	MailboxSize int `mapstructure:"mailbox_size"`
	// DefaultGameType is used when create_room names none.
	DefaultGameType string `mapstructure:"default_game_type"`
	// IdleTimeout dissolves rooms without activity for this long. 0, the
	// default, keeps rooms until their last player leaves.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SweepInterval is how often idle rooms are looked for.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// WebsocketConfig holds per-connection transport settings.
type WebsocketConfig struct {
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// CatalogConfig locates the question set files.
type CatalogConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScoringConfig selects who scores answers.
type ScoringConfig struct {
	// Mode is "server" (catalog scorer) or "client" (points in the payload).
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ResultsConfig locates the finished game records. An empty Dir disables
// recording.
type ResultsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// TunnelConfig holds the optional ngrok tunnel settings.
type TunnelConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"auth_token"`
	Domain    string `mapstructure:"domain"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Results   ResultsConfig   `mapstructure:"results"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tunnel    TunnelConfig    `mapstructure:"tunnel"`
}

// Validate checks all configuration invariants and reports every violation.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}

	if c.Rooms.MaxPlayers < 1 {
		errs = append(errs, fmt.Sprintf("rooms.max_players must be >= 1, got %d", c.Rooms.MaxPlayers))
	}
	if c.Rooms.MaxRooms < 0 {
		errs = append(errs, fmt.Sprintf("rooms.max_rooms must be >= 0, got %d", c.Rooms.MaxRooms))
	}
	if c.Rooms.CodeLength < 4 || c.Rooms.CodeLength > 12 {
		errs = append(errs, fmt.Sprintf("rooms.code_length must be 4-12, got %d", c.Rooms.CodeLength))
	}
	if c.Rooms.MailboxSize < 1 {
		errs = append(errs, fmt.Sprintf("rooms.mailbox_size must be >= 1, got %d", c.Rooms.MailboxSize))
	}
	if c.Rooms.IdleTimeout < 0 {
		errs = append(errs, "rooms.idle_timeout must not be negative")
	}
	if c.Rooms.IdleTimeout > 0 && c.Rooms.SweepInterval <= 0 {
		errs = append(errs, "rooms.sweep_interval must be positive when rooms.idle_timeout is set")
	}

	if c.Websocket.ReadLimit < 1 {
		errs = append(errs, fmt.Sprintf("websocket.read_limit must be >= 1, got %d", c.Websocket.ReadLimit))
	}
	if c.Websocket.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", c.Websocket.SendBuffer))
	}
	if c.Websocket.RatePerSecond < 0 {
		errs = append(errs, "websocket.rate_per_second must not be negative")
	}
	if c.Websocket.RatePerSecond > 0 && c.Websocket.Burst < 1 {
		errs = append(errs, "websocket.burst must be >= 1 when rate limiting is enabled")
	}
	if c.Websocket.PongWait <= 0 {
		errs = append(errs, "websocket.pong_wait must be positive")
	}

	switch c.Scoring.Mode {
	case ScoringServer:
		if c.Catalog.Dir == "" {
			errs = append(errs, "catalog.dir must be set when scoring.mode is server")
		}
	case ScoringClient:
	default:
		errs = append(errs, fmt.Sprintf("scoring.mode must be one of [server, client], got %q", c.Scoring.Mode))
	}
	if c.Scoring.Timeout <= 0 {
		errs = append(errs, "scoring.timeout must be positive")
	}

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Tunnel.Enabled && c.Tunnel.AuthToken == "" {
		errs = append(errs, "tunnel.auth_token must be set when the tunnel is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from path, applies QUIZ_ environment overrides and
// validates the result. An empty path uses defaults and the environment only.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(errors.Join(errors.New("config defaults do not decode"), err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// the ngrok SDK's conventional variable also feeds the tunnel token
	_ = v.BindEnv("tunnel.auth_token", EnvPrefix+"_TUNNEL_AUTH_TOKEN", "NGROK_AUTHTOKEN")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("rooms.max_players", 6)
	v.SetDefault("rooms.max_rooms", 0)
	v.SetDefault("rooms.code_length", 6)
	v.SetDefault("rooms.mailbox_size", 64)
	v.SetDefault("rooms.default_game_type", "trivia")
	v.SetDefault("rooms.idle_timeout", time.Duration(0))
	v.SetDefault("rooms.sweep_interval", time.Minute)

	v.SetDefault("websocket.read_limit", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.rate_per_second", 20.0)
	v.SetDefault("websocket.burst", 40)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("catalog.dir", "configs/catalog")
	v.SetDefault("scoring.mode", ScoringServer)
	v.SetDefault("scoring.timeout", 2*time.Second)
	v.SetDefault("results.dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("tunnel.enabled", false)
	v.SetDefault("tunnel.auth_token", "")
	v.SetDefault("tunnel.domain", "")
}
