package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/adapters"
	adaudio "github.com/satriahrh/arunika/client/adapters/audio"
	"github.com/satriahrh/arunika/client/adapters/backend"
	"github.com/satriahrh/arunika/client/adapters/keyring"
	"github.com/satriahrh/arunika/client/adapters/mongo"
	"github.com/satriahrh/arunika/client/domain/repositories"
	"github.com/satriahrh/arunika/client/internal/auth"
	"github.com/satriahrh/arunika/client/internal/config"
	"github.com/satriahrh/arunika/client/internal/logging"
	"github.com/satriahrh/arunika/client/internal/metrics"
	ws "github.com/satriahrh/arunika/client/internal/websocket"
	"github.com/satriahrh/arunika/client/usecase"
)

// silence stands in for a microphone when no capture file is configured
const silenceDuration = 5 * time.Minute

// app holds what every subcommand shares
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	backend *backend.Client
	auth    *auth.Manager
}

func newApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Env)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client := backend.NewClient(cfg.Backend.APIURL, logger)
	mgr := auth.NewManager(client, logger,
		auth.WithRefreshLead(cfg.Auth.RefreshLead),
		auth.WithStore(credentialStore(cfg)),
		auth.WithRefreshObserver(m.RecordRefresh))

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		backend: client,
		auth:    mgr,
	}, nil
}

func credentialStore(cfg *config.Config) repositories.CredentialStore {
	if cfg.Auth.Store == config.StoreKeyring {
		account := cfg.Auth.Email
		if account == "" {
			account = "default"
		}
		return keyring.NewCredentialStore(account)
	}
	return adapters.NewMemoryCredentialStore()
}

// openArchive returns the Mongo archive when configured, the in-memory one
// otherwise, and a func that releases it
func (a *app) openArchive(ctx context.Context) (repositories.SessionArchive, func(), error) {
	if a.cfg.Archive.MongoURI == "" {
		return adapters.NewMemorySessionArchive(), func() {}, nil
	}

	client, err := mongo.NewClient(ctx, a.cfg.Archive.MongoURI, a.cfg.Archive.MongoDatabase, a.logger)
	if err != nil {
		return nil, nil, err
	}
	archive := mongo.NewSessionArchive(client.Database, a.logger)
	if err := archive.EnsureIndexes(ctx); err != nil {
		a.logger.Warn("Failed to create archive indexes", zap.Error(err))
	}

	return archive, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	}, nil
}

// sessionFactory builds each session with fresh devices
func (a *app) sessionFactory(archive repositories.SessionArchive) usecase.SessionFactory {
	dialer := ws.NewDialer(a.logger)

	return func() (*usecase.VoiceSession, error) {
		var capture repositories.CaptureProcessor
		if a.cfg.Audio.CaptureWAV != "" {
			capture = adaudio.NewWAVCapture(a.cfg.Audio.CaptureWAV, a.cfg.Audio.CaptureChunks, a.logger)
		} else {
			capture = adaudio.NewSilenceCapture(silenceDuration, a.cfg.Audio.CaptureChunks, a.logger)
		}

		var playback repositories.PlaybackProcessor
		if a.cfg.Audio.PlaybackOut != "" {
			p, err := adaudio.OpenFilePlayback(a.cfg.Audio.PlaybackOut, a.logger)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", usecase.ErrDeviceUnavailable, err)
			}
			playback = p
		} else {
			playback = adaudio.NewDiscardPlayback(a.logger)
		}

		return usecase.NewVoiceSession(usecase.VoiceSessionConfig{
			WSURL:        a.cfg.Backend.WSURL,
			PoolPrealloc: a.cfg.Audio.PoolPrealloc,
			Preferences:  a.cfg.Session,
		}, usecase.VoiceSessionDeps{
			Auth:     a.auth,
			Sessions: a.backend,
			Dialer:   dialer,
			Capture:  capture,
			Playback: playback,
			Archive:  archive,
			Metrics:  a.metrics,
			Logger:   a.logger,
		})
	}
}
