// Package config loads client settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/satriahrh/arunika/client/domain/entities"
)

// Config is the full client configuration
type Config struct {
	Backend   BackendConfig
	Auth      AuthConfig
	Audio     AudioConfig
	Session   entities.SessionPreferences
	Control   ControlConfig
	Archive   ArchiveConfig
	Logging   LoggingConfig
	DevServer DevServerConfig
}

// BackendConfig locates the voice backend
type BackendConfig struct {
	APIURL string
	WSURL  string
}

// AuthConfig holds login and credential settings
type AuthConfig struct {
	Email       string
	Password    string
	RefreshLead time.Duration
	Store       string // memory or keyring
}

// AudioConfig selects the capture source and playback sink
type AudioConfig struct {
	CaptureWAV    string
	CaptureChunks []int
	PlaybackOut   string
	PoolPrealloc  int
}

// ControlConfig is the local control API
type ControlConfig struct {
	Addr string
}

// ArchiveConfig selects where finished sessions are stored
type ArchiveConfig struct {
	MongoURI      string
	MongoDatabase string
}

// LoggingConfig selects logger level and format
type LoggingConfig struct {
	Level string
	Env   string
}

// DevServerConfig configures the local stub backend
type DevServerConfig struct {
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration
}

// Credential store kinds
const (
	StoreMemory  = "memory"
	StoreKeyring = "keyring"
)

// Load reads .env if present, then the environment
func Load() *Config {
	_ = godotenv.Load()

	apiURL := envOrDefault("ARUNIKA_API_URL", "http://localhost:8080")

	return &Config{
		Backend: BackendConfig{
			APIURL: apiURL,
			WSURL:  envOrDefault("ARUNIKA_WS_URL", deriveWSURL(apiURL)),
		},
		Auth: AuthConfig{
			Email:       os.Getenv("ARUNIKA_EMAIL"),
			Password:    os.Getenv("ARUNIKA_PASSWORD"),
			RefreshLead: envOrDefaultDuration("ARUNIKA_REFRESH_LEAD", 60*time.Second),
			Store:       envOrDefault("ARUNIKA_CREDENTIAL_STORE", StoreMemory),
		},
		Audio: AudioConfig{
			CaptureWAV:    os.Getenv("ARUNIKA_CAPTURE_WAV"),
			CaptureChunks: envOrDefaultInts("ARUNIKA_CAPTURE_CHUNKS", []int{128, 480, 1000, 1500, 100}),
			PlaybackOut:   os.Getenv("ARUNIKA_PLAYBACK_OUT"),
			PoolPrealloc:  envOrDefaultInt("ARUNIKA_POOL_PREALLOC", 4),
		},
		Session: entities.SessionPreferences{
			Speed:     envOrDefaultInt("ARUNIKA_SPEED", 5),
			Persona:   envOrDefault("ARUNIKA_PERSONA", "friendly companion"),
			Verbosity: entities.Verbosity(envOrDefault("ARUNIKA_VERBOSITY", string(entities.VerbosityNormal))),
		},
		Control: ControlConfig{
			Addr: envOrDefault("ARUNIKA_CONTROL_ADDR", ":8090"),
		},
		Archive: ArchiveConfig{
			MongoURI:      os.Getenv("MONGODB_URI"),
			MongoDatabase: envOrDefault("MONGODB_DATABASE", "arunika_client"),
		},
		Logging: LoggingConfig{
			Level: envOrDefault("LOG_LEVEL", "info"),
			Env:   envOrDefault("ENV", "production"),
		},
		DevServer: DevServerConfig{
			Addr:      envOrDefault("DEVSERVER_ADDR", ":8080"),
			JWTSecret: envOrDefault("JWT_SECRET", "dev-secret"),
			TokenTTL:  envOrDefaultDuration("DEVSERVER_TOKEN_TTL", time.Hour),
		},
	}
}

// Validate checks values that would make the client misbehave
func (c *Config) Validate() error {
	var errs []error

	if _, err := url.ParseRequestURI(c.Backend.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid ARUNIKA_API_URL: %w", err))
	}
	if u, err := url.ParseRequestURI(c.Backend.WSURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid ARUNIKA_WS_URL: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("ARUNIKA_WS_URL must use ws or wss, got %s", u.Scheme))
	}
	if c.Auth.Store != StoreMemory && c.Auth.Store != StoreKeyring {
		errs = append(errs, fmt.Errorf("ARUNIKA_CREDENTIAL_STORE must be %s or %s, got %s", StoreMemory, StoreKeyring, c.Auth.Store))
	}
	if c.Auth.RefreshLead <= 0 {
		errs = append(errs, errors.New("ARUNIKA_REFRESH_LEAD must be positive"))
	}
	for _, n := range c.Audio.CaptureChunks {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("ARUNIKA_CAPTURE_CHUNKS entries must be positive, got %d", n))
			break
		}
	}
	if c.Audio.PoolPrealloc < 0 {
		errs = append(errs, errors.New("ARUNIKA_POOL_PREALLOC must not be negative"))
	}
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid session preferences: %w", err))
	}

	return errors.Join(errs...)
}

func deriveWSURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultInts(key string, def []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return def
		}
		out = append(out, i)
	}
	return out
}
