package config

import "time"

// Config holds relay and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	// JWTRequired rejects WebSocket hellos without a valid token.
	JWTRequired bool `mapstructure:"jwt_required" yaml:"jwt_required"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	PendingLimit       int   `mapstructure:"pending_limit" yaml:"pending_limit"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	RelayURL    string        `mapstructure:"relay_url" yaml:"relay_url"`
	Nick        string        `mapstructure:"nick" yaml:"nick"`
	Color       string        `mapstructure:"color" yaml:"color"`
	Token       string        `mapstructure:"token" yaml:"token"`
	Room        string        `mapstructure:"room" yaml:"room"`
	JournalDir  string        `mapstructure:"journal_dir" yaml:"journal_dir"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	EbookDevice string        `mapstructure:"ebook_device" yaml:"ebook_device"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "sugarchat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "sugarchat",
		JWTAudience:        "sugarchat",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    64 << 10,
		RateLimitPerMinute: 120,
		PendingLimit:       256,
		Client: ClientConfig{
			RelayURL:    "ws://localhost:8080/ws",
			Room:        "general",
			JournalDir:  "journal",
			CallTimeout: 5 * time.Second,
			EbookDevice: "/dev/input/event4",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.PendingLimit != 0 {
		c.PendingLimit = other.PendingLimit
	}
	if other.Client.RelayURL != "" {
		c.Client.RelayURL = other.Client.RelayURL
	}
	if other.Client.Nick != "" {
		c.Client.Nick = other.Client.Nick
	}
	if other.Client.Color != "" {
		c.Client.Color = other.Client.Color
	}
	if other.Client.Token != "" {
		c.Client.Token = other.Client.Token
	}
	if other.Client.Room != "" {
		c.Client.Room = other.Client.Room
	}
	if other.Client.JournalDir != "" {
		c.Client.JournalDir = other.Client.JournalDir
	}
}
