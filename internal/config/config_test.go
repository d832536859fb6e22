package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/satriahrh/arunika/client/domain/entities"
)

var envVars = []string{
	"ARUNIKA_API_URL", "ARUNIKA_WS_URL", "ARUNIKA_EMAIL", "ARUNIKA_PASSWORD",
	"ARUNIKA_REFRESH_LEAD", "ARUNIKA_CREDENTIAL_STORE", "ARUNIKA_CAPTURE_WAV",
	"ARUNIKA_CAPTURE_CHUNKS", "ARUNIKA_PLAYBACK_OUT", "ARUNIKA_POOL_PREALLOC",
	"ARUNIKA_SPEED", "ARUNIKA_PERSONA", "ARUNIKA_VERBOSITY", "ARUNIKA_CONTROL_ADDR",
	"MONGODB_URI", "MONGODB_DATABASE", "LOG_LEVEL", "ENV",
	"DEVSERVER_ADDR", "JWT_SECRET", "DEVSERVER_TOKEN_TTL",
}

func clearEnv() {
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	if cfg.Backend.APIURL != "http://localhost:8080" {
		t.Errorf("expected default api url, got %s", cfg.Backend.APIURL)
	}
	if cfg.Backend.WSURL != "ws://localhost:8080/ws" {
		t.Errorf("expected derived ws url, got %s", cfg.Backend.WSURL)
	}
	if cfg.Auth.RefreshLead != 60*time.Second {
		t.Errorf("expected default refresh lead 60s, got %v", cfg.Auth.RefreshLead)
	}
	if cfg.Auth.Store != StoreMemory {
		t.Errorf("expected memory store, got %s", cfg.Auth.Store)
	}
	if cfg.Session.Verbosity != entities.VerbosityNormal {
		t.Errorf("expected normal verbosity, got %s", cfg.Session.Verbosity)
	}
	if cfg.Control.Addr != ":8090" {
		t.Errorf("expected control addr :8090, got %s", cfg.Control.Addr)
	}
	if cfg.Archive.MongoURI != "" {
		t.Errorf("expected no mongo uri, got %s", cfg.Archive.MongoURI)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("ARUNIKA_API_URL", "https://voice.example.com/api")
	os.Setenv("ARUNIKA_CAPTURE_CHUNKS", "1000, 1500,100")
	os.Setenv("ARUNIKA_SPEED", "7")
	os.Setenv("ARUNIKA_VERBOSITY", "brief")
	os.Setenv("ARUNIKA_CREDENTIAL_STORE", "keyring")
	os.Setenv("DEVSERVER_TOKEN_TTL", "90s")
	defer clearEnv()

	cfg := Load()

	if cfg.Backend.WSURL != "wss://voice.example.com/api/ws" {
		t.Errorf("expected wss url, got %s", cfg.Backend.WSURL)
	}
	if len(cfg.Audio.CaptureChunks) != 3 || cfg.Audio.CaptureChunks[1] != 1500 {
		t.Errorf("expected chunks [1000 1500 100], got %v", cfg.Audio.CaptureChunks)
	}
	if cfg.Session.Speed != 7 {
		t.Errorf("expected speed 7, got %d", cfg.Session.Speed)
	}
	if cfg.Session.Verbosity != entities.VerbosityBrief {
		t.Errorf("expected brief verbosity, got %s", cfg.Session.Verbosity)
	}
	if cfg.DevServer.TokenTTL != 90*time.Second {
		t.Errorf("expected token ttl 90s, got %v", cfg.DevServer.TokenTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected custom values to validate, got %v", err)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv()
	os.Setenv("ARUNIKA_SPEED", "fast")
	os.Setenv("ARUNIKA_REFRESH_LEAD", "soon")
	os.Setenv("ARUNIKA_CAPTURE_CHUNKS", "1,two,3")
	defer clearEnv()

	cfg := Load()

	if cfg.Session.Speed != 5 {
		t.Errorf("expected default speed on invalid input, got %d", cfg.Session.Speed)
	}
	if cfg.Auth.RefreshLead != 60*time.Second {
		t.Errorf("expected default refresh lead on invalid input, got %v", cfg.Auth.RefreshLead)
	}
	if len(cfg.Audio.CaptureChunks) != 5 {
		t.Errorf("expected default chunks on invalid input, got %v", cfg.Audio.CaptureChunks)
	}
}

func TestValidate(t *testing.T) {
	clearEnv()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad ws scheme", func(c *Config) { c.Backend.WSURL = "http://localhost/ws" }, "ws or wss"},
		{"bad store", func(c *Config) { c.Auth.Store = "vault" }, "ARUNIKA_CREDENTIAL_STORE"},
		{"bad chunk", func(c *Config) { c.Audio.CaptureChunks = []int{10, 0} }, "ARUNIKA_CAPTURE_CHUNKS"},
		{"bad verbosity", func(c *Config) { c.Session.Verbosity = "chatty" }, "session preferences"},
		{"bad lead", func(c *Config) { c.Auth.RefreshLead = 0 }, "ARUNIKA_REFRESH_LEAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
