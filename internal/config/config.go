// Package config loads countergraph settings from COUNTERGRAPH_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures the serve command.
type Server struct {
	Addr            string        `env:"COUNTERGRAPH_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"COUNTERGRAPH_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"COUNTERGRAPH_LOG_FORMAT" envDefault:"json"`
	Introspection   bool          `env:"COUNTERGRAPH_INTROSPECTION" envDefault:"true"`
	GraphiQL        bool          `env:"COUNTERGRAPH_GRAPHIQL" envDefault:"true"`
	Timeout         time.Duration `env:"COUNTERGRAPH_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"COUNTERGRAPH_MAX_BODY_BYTES" envDefault:"1048576"`
	CORSOrigins     []string      `env:"COUNTERGRAPH_CORS_ORIGINS" envSeparator:","`
	WSRateLimit     float64       `env:"COUNTERGRAPH_WS_RATE_LIMIT" envDefault:"20"`
	WSBurst         int           `env:"COUNTERGRAPH_WS_BURST" envDefault:"40"`
	ShutdownTimeout time.Duration `env:"COUNTERGRAPH_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	OTLPEndpoint    string        `env:"COUNTERGRAPH_OTLP_ENDPOINT"`
	ServiceName     string        `env:"COUNTERGRAPH_SERVICE_NAME" envDefault:"countergraph"`
}

// Client configures the query and watch commands.
type Client struct {
	ServerURL string `env:"COUNTERGRAPH_SERVER_URL"`
	LogLevel  string `env:"COUNTERGRAPH_LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer reads the server settings.
func LoadServer() (Server, error) {
	var cfg Server
	err := ParseEnv(&cfg)
	return cfg, err
}

// LoadClient reads the client settings. A missing server URL is reported
// by RequireServerURL, after flags had their chance to supply it.
func LoadClient() (Client, error) {
	var cfg Client
	err := ParseEnv(&cfg)
	return cfg, err
}

// RequireServerURL fails when no server URL was configured.
func (c Client) RequireServerURL() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is not set: use --server or COUNTERGRAPH_SERVER_URL")
	}
	return nil
}
