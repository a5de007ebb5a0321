// Package config holds the client's runtime settings. Defaults point at the
// public pairing server; every field can be overridden from the environment
// and, in cmd/anonchat, from command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported values for Scheme.
const (
	SchemeTCP = "tcp"
	SchemeWS  = "ws"
)

// Config holds every setting the client needs.
type Config struct {
	Host           string        // pairing server host
	Port           int           // pairing server port
	Scheme         string        // "tcp" or "ws"
	WSPath         string        // request path when Scheme is "ws"
	ConnectTimeout time.Duration // bound on one connect attempt
	WriteTimeout   time.Duration // deadline for writing one frame

	StatusAddr  string // listen address of the status server; empty disables it
	NATSURL     string // NATS server for the state mirror; empty disables it
	NATSSubject string // subject the state mirror publishes to
	TraceOutput string // "stderr" or a file for connect spans; empty disables tracing

	LogLevel       string // debug, info, warn or error
	LogDevelopment bool   // human-readable console logs
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:           "ec2-3-17-65-117.us-east-2.compute.amazonaws.com",
		Port:           3000,
		Scheme:         SchemeTCP,
		WSPath:         "/",
		ConnectTimeout: 8 * time.Second,
		WriteTimeout:   10 * time.Second,
		NATSSubject:    "anonchat.state",
		LogLevel:       "info",
	}
}

// FromEnv returns Default with overrides from the process environment.
func FromEnv() Config {
	return Load(os.Getenv)
}

// Load returns Default with overrides read through getenv. Unset variables
// and values that fail to parse leave the default in place.
func Load(getenv func(string) string) Config {
	cfg := Default()

	if v := getenv("ANONCHAT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := getenv("ANONCHAT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := getenv("ANONCHAT_SCHEME"); v != "" {
		cfg.Scheme = strings.ToLower(v)
	}
	if v := getenv("ANONCHAT_WS_PATH"); v != "" {
		cfg.WSPath = v
	}
	if v := getenv("ANONCHAT_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConnectTimeout = d
		}
	}
	if v := getenv("ANONCHAT_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WriteTimeout = d
		}
	}
	if v := getenv("ANONCHAT_STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
	if v := getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := getenv("ANONCHAT_NATS_SUBJECT"); v != "" {
		cfg.NATSSubject = v
	}
	if v := getenv("ANONCHAT_TRACE"); v != "" {
		cfg.TraceOutput = v
	}
	if v := getenv("ANONCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("ANONCHAT_LOG_DEV"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogDevelopment = b
		}
	}

	return cfg
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	switch c.Scheme {
	case SchemeTCP, SchemeWS:
	default:
		errs = append(errs, fmt.Errorf("unknown scheme %q (want %s or %s)", c.Scheme, SchemeTCP, SchemeWS))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect timeout must be positive, got %v", c.ConnectTimeout))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write timeout must be positive, got %v", c.WriteTimeout))
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		errs = append(errs, errors.New("nats subject is empty"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

// Addr returns the pairing server address as host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
