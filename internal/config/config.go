// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present; real
// environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server configures the matchmaking server.
type Server struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	WorkerPoolSize int           `env:"WORKER_POOL_SIZE" envDefault:"256"`
	MaxConnections int           `env:"MAX_CONNECTIONS" envDefault:"100000"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	MaxFrameBytes  int64         `env:"MAX_FRAME_BYTES" envDefault:"1048576"`
	SendQueueSize  int           `env:"SEND_QUEUE_SIZE" envDefault:"64"`
	PingInterval   time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	PingTimeout    time.Duration `env:"PING_TIMEOUT" envDefault:"10s"`
	ServerName     string        `env:"SERVER_NAME"`

	NATSURL        string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	MatchTick      time.Duration `env:"MATCH_TICK" envDefault:"1s"`
	ChatBufferSize int           `env:"CHAT_BUFFER_SIZE" envDefault:"20"`
	WideningPolicy string        `env:"WIDENING_POLICY" envDefault:"strict"`
	ReportTimeout  time.Duration `env:"REPORT_TIMEOUT" envDefault:"10s"`

	ICEServers     []string `env:"ICE_SERVERS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302"`
	TURNURLs       []string `env:"TURN_URLS" envSeparator:","`
	TURNUsername   string   `env:"TURN_USERNAME"`
	TURNCredential string   `env:"TURN_CREDENTIAL"`

	RelayRate  float64 `env:"RELAY_RATE" envDefault:"20"`
	RelayBurst int     `env:"RELAY_BURST" envDefault:"40"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Moderator configures the moderation worker.
type Moderator struct {
	NATSURL      string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DatabaseURL  string        `env:"DATABASE_URL,notEmpty"`
	MetricsAddr  string        `env:"METRICS_ADDR" envDefault:":9091"`
	ReportWindow time.Duration `env:"REPORT_WINDOW" envDefault:"24h"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty    bool          `env:"LOG_PRETTY" envDefault:"false"`
}

// LoadServer reads the server configuration and validates it.
func LoadServer() (Server, error) {
	var c Server
	if err := load(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadModerator reads the moderator configuration and validates it.
func LoadModerator() (Moderator, error) {
	var c Moderator
	if err := load(&c); err != nil {
		return c, err
	}
	if c.ReportWindow <= 0 {
		return c, errors.New("config: REPORT_WINDOW must be positive")
	}
	return c, nil
}

func load(target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Validate rejects sizes and timeouts that cannot work.
func (c Server) Validate() error {
	var errs []error
	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	positive("WORKER_POOL_SIZE", c.WorkerPoolSize > 0)
	positive("MAX_CONNECTIONS", c.MaxConnections > 0)
	positive("READ_TIMEOUT", c.ReadTimeout > 0)
	positive("WRITE_TIMEOUT", c.WriteTimeout > 0)
	positive("MAX_FRAME_BYTES", c.MaxFrameBytes > 0)
	positive("SEND_QUEUE_SIZE", c.SendQueueSize > 0)
	positive("PING_INTERVAL", c.PingInterval > 0)
	positive("MATCH_TICK", c.MatchTick > 0)
	positive("CHAT_BUFFER_SIZE", c.ChatBufferSize > 0)
	positive("REPORT_TIMEOUT", c.ReportTimeout > 0)
	positive("RELAY_RATE", c.RelayRate > 0)
	positive("RELAY_BURST", c.RelayBurst > 0)
	switch c.WideningPolicy {
	case "strict", "lenient":
	default:
		errs = append(errs, fmt.Errorf("WIDENING_POLICY must be strict or lenient, got %q", c.WideningPolicy))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
