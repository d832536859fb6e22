package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
	"github.com/satriahrh/arunika/client/internal/audio"
	"github.com/satriahrh/arunika/client/internal/auth"
	"github.com/satriahrh/arunika/client/internal/commands"
	"github.com/satriahrh/arunika/client/internal/metrics"
	"github.com/satriahrh/arunika/client/internal/playback"
	"github.com/satriahrh/arunika/client/internal/saga"
	ws "github.com/satriahrh/arunika/client/internal/websocket"
)

var (
	// ErrDeviceUnavailable wraps capture or playback acquisition failures
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrSessionStarted is returned by a second Start
	ErrSessionStarted = errors.New("session already started")

	// ErrSessionClosed is returned for actions on a finished session
	ErrSessionClosed = errors.New("session closed")
)

const (
	eventQueueSize  = 256
	teardownTimeout = 5 * time.Second
)

// Authorizer runs a backend call with the current bearer token, refreshing
// once on rejection
type Authorizer interface {
	Do(ctx context.Context, fn func(token string) error) error
}

// VoiceSessionConfig configures one session
type VoiceSessionConfig struct {
	// WSURL is the socket base; the backend session id is appended
	WSURL        string
	PoolPrealloc int
	// Preferences are queued before start and flushed on open. Zero fields
	// are skipped.
	Preferences entities.SessionPreferences
}

// VoiceSessionDeps are the collaborators of a session. Archive and Metrics
// are optional.
type VoiceSessionDeps struct {
	Auth     Authorizer
	Sessions repositories.SessionService
	Dialer   repositories.Dialer
	Capture  repositories.CaptureProcessor
	Playback repositories.PlaybackProcessor
	Archive  repositories.SessionArchive
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// FrameCounts counts outbound frames by outcome
type FrameCounts struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Status is a point-in-time view of the session
type Status struct {
	ID               string                      `json:"id"`
	BackendSessionID string                      `json:"backend_session_id,omitempty"`
	State            entities.SessionStatus      `json:"state"`
	Playing          bool                        `json:"playing"`
	IgnoringIncoming bool                        `json:"ignoring_incoming"`
	Preferences      entities.SessionPreferences `json:"preferences"`
	Pending          commands.Snapshot           `json:"pending"`
	Frames           FrameCounts                 `json:"frames"`
	StartedAt        *time.Time                  `json:"started_at,omitempty"`
	LastError        string                      `json:"last_error,omitempty"`
}

// TranscriptView is the finalized log plus the in-progress values
type TranscriptView struct {
	Entries         []entities.TranscriptEntry `json:"entries"`
	UserTyping      string                     `json:"user_typing,omitempty"`
	AssistantTyping string                     `json:"assistant_typing,omitempty"`
}

type eventKind int

const (
	eventSocketMessage eventKind = iota
	eventCapture
	eventPlayback
	eventStop
)

type sessionEvent struct {
	kind        eventKind
	messageType int
	data        []byte
	samples     []int16
	signal      domain.PlaybackSignal
}

// VoiceSession is one duplex conversation with the backend. A single event
// loop goroutine owns the buffer pool, frame builder, pump and dispatcher;
// socket messages, capture chunks and playback signals all reach them
// through the loop.
type VoiceSession struct {
	id      string
	cfg     VoiceSessionConfig
	deps    VoiceSessionDeps
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	transcript *entities.Transcript
	controller *playback.Controller
	dispatcher *ws.Dispatcher
	queue      *commands.Queue
	relay      *controlRelay
	pool       *audio.BufferPool
	pump       *audio.Pump
	sagas      *saga.Manager

	events   chan sessionEvent
	loopDone chan struct{}
	done     chan struct{}

	// loop goroutine only
	allocSeen int

	sent, dropped, failed atomic.Int64

	mu        sync.RWMutex
	status    entities.SessionStatus
	backendID string
	prefs     entities.SessionPreferences
	startedAt time.Time
	lastErr   error
	scope     *saga.Scope
	started   bool
	closing   bool
	cancel    context.CancelFunc

	teardownOnce sync.Once
}

// NewVoiceSession wires a session in idle state. Nothing touches the
// network or devices until Start.
func NewVoiceSession(cfg VoiceSessionConfig, deps VoiceSessionDeps) (*VoiceSession, error) {
	if deps.Auth == nil || deps.Sessions == nil || deps.Dialer == nil || deps.Capture == nil || deps.Playback == nil {
		return nil, errors.New("voice session requires auth, sessions, dialer, capture and playback")
	}
	if cfg.WSURL == "" {
		return nil, errors.New("voice session requires a websocket url")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("sessionID", id))

	s := &VoiceSession{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        time.Now,
		transcript: entities.NewTranscript(),
		relay:      newControlRelay(),
		sagas:      saga.NewManager(logger),
		events:     make(chan sessionEvent, eventQueueSize),
		loopDone:   make(chan struct{}),
		done:       make(chan struct{}),
		status:     entities.SessionStatusIdle,
	}

	s.controller = playback.NewController(s.relay, logger)
	s.controller.OnTransition(func(_, to playback.State) {
		s.metrics.RecordPlayback(to.String(), to == playback.StatePlaying)
	})

	s.dispatcher = ws.NewDispatcher(s.transcript, meteredPlayback{deps.Playback, deps.Metrics}, s.controller, s.relay, logger)
	s.dispatcher.SetHooks(ws.DispatchHooks{
		EventDispatched: func(t domain.EventType) { s.metrics.RecordEvent(string(t)) },
		DecodeFailed:    func(error) { s.metrics.RecordDecodeFailure() },
		ChunkDropped:    func() { s.metrics.RecordChunkDropped() },
	})

	s.queue = commands.NewQueue(nil, logger)

	s.pool = audio.NewBufferPool(audio.FrameBytes, cfg.PoolPrealloc)
	s.allocSeen = s.pool.Allocated()
	builder := audio.NewFrameBuilder(s.pool, s.relay, s.controller.Playing,
		audio.WithLogger(logger),
		audio.WithObserver(s.observeFrame))
	s.pump = audio.NewPump(builder)

	if err := s.applyPreferences(cfg.Preferences); err != nil {
		return nil, err
	}
	return s, nil
}

// ID is the local id, also used as the archive record id
func (s *VoiceSession) ID() string { return s.id }

// Done is closed once teardown has finished
func (s *VoiceSession) Done() <-chan struct{} { return s.done }

// Err returns why the session ended, nil for a clean close
func (s *VoiceSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Start creates the backend session, acquires capture and playback, and
// dials the socket. Any failure releases what was acquired. The session
// lives until ctx is cancelled, Close is called or the socket closes.
func (s *VoiceSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.status = entities.SessionStatusConnecting
	s.mu.Unlock()

	go s.run()

	scope, err := s.sagas.Run(ctx, "voice_session", s.startupSteps()...)
	if err != nil {
		status := failureStatus(err)
		s.logger.Error("Failed to start session",
			zap.String("status", string(status)),
			zap.Error(err))
		s.teardown(status, err)
		return err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.releaseLate(scope)
		return ErrSessionClosed
	}
	s.scope = scope
	s.status = entities.SessionStatusOpen
	s.startedAt = s.now()
	backendID := s.backendID
	s.mu.Unlock()

	s.metrics.RecordSessionStart()
	s.logger.Info("Session started", zap.String("backendSessionID", backendID))

	s.flushPending()

	go s.watch(ctx, s.relay.current())
	return nil
}

// Close ends the session normally
func (s *VoiceSession) Close() error {
	s.teardown(entities.SessionStatusClosed, nil)
	return nil
}

// AuthRequired ends the session because the credential is gone
func (s *VoiceSession) AuthRequired(err error) {
	if err == nil {
		err = auth.ErrAuthRequired
	}
	s.teardown(entities.SessionStatusNeedsReauth, err)
}

// SwitchSession closes the session and wipes its conversation state. The
// transcript is archived before it is cleared.
func (s *VoiceSession) SwitchSession() error {
	err := s.Close()
	s.resetConversation()
	return err
}

func (s *VoiceSession) resetConversation() {
	s.queue.Clear()
	s.controller.Reset()
	s.dispatcher.Reset()
	s.transcript.Reset()
}

// SetSpeed sends set_speed, or queues it until the socket opens. It reports
// whether the command went out immediately.
func (s *VoiceSession) SetSpeed(speed int) (bool, error) {
	sent, err := s.enqueue(commands.SpeedCommand{Speed: speed})
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.prefs.Speed = speed
	s.mu.Unlock()
	return sent, nil
}

// SetSystemPrompt sends set_system_prompt, or queues it until the socket opens
func (s *VoiceSession) SetSystemPrompt(persona string, verbosity entities.Verbosity) (bool, error) {
	sent, err := s.enqueue(commands.SystemPromptCommand{Persona: persona, Verbosity: verbosity})
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.prefs.Persona = persona
	s.prefs.Verbosity = verbosity
	s.mu.Unlock()
	return sent, nil
}

// ClearHistory asks the server to forget the conversation when connected,
// then resets the local transcript and playback state either way.
func (s *VoiceSession) ClearHistory() error {
	var err error
	if s.relay.IsOpen() {
		if sendErr := s.relay.SendControl(domain.NewSignal(domain.ControlClearHistory)); sendErr != nil {
			err = fmt.Errorf("failed to send clear_history: %w", sendErr)
		}
	}

	s.deps.Playback.Clear()
	s.controller.Reset()
	s.dispatcher.Reset()
	s.transcript.Reset()

	s.logger.Info("History cleared")
	return err
}

// Transcript returns the finalized log and typing values
func (s *VoiceSession) Transcript() TranscriptView {
	return TranscriptView{
		Entries:         s.transcript.Entries(),
		UserTyping:      s.transcript.Typing(entities.MessageRoleUser),
		AssistantTyping: s.transcript.Typing(entities.MessageRoleAssistant),
	}
}

// Status returns the current session state
func (s *VoiceSession) Status() Status {
	s.mu.RLock()
	st := Status{
		ID:               s.id,
		BackendSessionID: s.backendID,
		State:            s.status,
		Preferences:      s.prefs,
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		st.StartedAt = &startedAt
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()

	st.Playing = s.controller.Playing()
	st.IgnoringIncoming = s.dispatcher.IgnoringIncoming()
	st.Pending = s.queue.Pending()
	st.Frames = s.frameCounts()
	return st
}

func (s *VoiceSession) startupSteps() []saga.Step {
	return []saga.Step{
		saga.NewStep("create_session", s.createBackendSession, nil),
		saga.NewStep("acquire_capture", s.acquireCapture, func(context.Context) error {
			return s.deps.Capture.Close()
		}),
		saga.NewStep("acquire_playback", s.acquirePlayback, func(context.Context) error {
			return s.deps.Playback.Close()
		}),
		// last step, so never compensated; teardown closes the socket after
		// the devices are released
		saga.NewStep("dial", s.dial, nil),
	}
}

func (s *VoiceSession) createBackendSession(ctx context.Context) error {
	return s.deps.Auth.Do(ctx, func(token string) error {
		id, err := s.deps.Sessions.CreateSession(ctx, token)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.backendID = id
		s.mu.Unlock()
		return nil
	})
}

func (s *VoiceSession) acquireCapture(ctx context.Context) error {
	err := s.deps.Capture.Start(ctx, func(chunk []int16) {
		s.post(sessionEvent{kind: eventCapture, samples: chunk})
	})
	if err != nil {
		return fmt.Errorf("%w: capture: %w", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *VoiceSession) acquirePlayback(ctx context.Context) error {
	err := s.deps.Playback.Start(ctx, func(signal domain.PlaybackSignal) {
		s.post(sessionEvent{kind: eventPlayback, signal: signal})
	})
	if err != nil {
		return fmt.Errorf("%w: playback: %w", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *VoiceSession) dial(ctx context.Context) error {
	s.mu.RLock()
	target := strings.TrimSuffix(s.cfg.WSURL, "/") + "/" + url.PathEscape(s.backendID)
	s.mu.RUnlock()

	return s.deps.Auth.Do(ctx, func(token string) error {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		t, err := s.deps.Dialer.Dial(ctx, target, header, s.onSocketMessage)
		if err != nil {
			return err
		}
		s.relay.attach(t)
		return nil
	})
}

func (s *VoiceSession) onSocketMessage(messageType int, data []byte) {
	s.post(sessionEvent{kind: eventSocketMessage, messageType: messageType, data: data})
}

// post hands an event to the loop. Events arriving after the loop stopped
// are dropped.
func (s *VoiceSession) post(ev sessionEvent) {
	select {
	case s.events <- ev:
	case <-s.loopDone:
	}
}

func (s *VoiceSession) run() {
	defer close(s.loopDone)

	for ev := range s.events {
		switch ev.kind {
		case eventCapture:
			s.metrics.RecordCapture(len(ev.samples))
			s.pump.Push(ev.samples)
		case eventSocketMessage:
			s.dispatcher.HandleMessage(ev.messageType, ev.data)
		case eventPlayback:
			switch ev.signal {
			case domain.PlaybackStarted:
				s.controller.OnPlaybackStarted()
			case domain.PlaybackStopped:
				s.controller.OnPlaybackStopped()
			}
		case eventStop:
			if s.pump.Stop() {
				s.logger.Debug("Flushed partial frame")
			}
			return
		}
	}
}

// stopLoop flushes the pump on the loop goroutine and waits for it to exit
func (s *VoiceSession) stopLoop() {
	select {
	case s.events <- sessionEvent{kind: eventStop}:
	case <-s.loopDone:
	}
	<-s.loopDone
}

func (s *VoiceSession) watch(ctx context.Context, t repositories.Transport) {
	if t == nil {
		return
	}

	select {
	case <-ctx.Done():
		s.teardown(entities.SessionStatusClosed, nil)
	case <-t.Done():
		var err error
		if e, ok := t.(interface{ Err() error }); ok {
			err = e.Err()
		}
		if err != nil {
			s.teardown(entities.SessionStatusNeedsReconnect, err)
			return
		}
		s.logger.Info("Session closed by server")
		s.teardown(entities.SessionStatusClosed, nil)
	case <-s.done:
	}
}

func (s *VoiceSession) flushPending() {
	pending := s.queue.Pending()
	n, err := s.queue.Open(s.relay)
	if err != nil {
		s.logger.Warn("Failed to flush pending commands", zap.Error(err))
		return
	}
	if pending.Speed != nil {
		s.metrics.RecordCommand(commands.KindSpeed.String(), "flushed")
	}
	if pending.SystemPrompt != nil {
		s.metrics.RecordCommand(commands.KindSystemPrompt.String(), "flushed")
	}
	if n > 0 {
		s.logger.Info("Pending commands delivered", zap.Int("count", n))
	}
}

// teardown runs once, whatever ended the session: flush the partial frame
// while the socket is still up, release devices, close the socket, archive.
func (s *VoiceSession) teardown(status entities.SessionStatus, cause error) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		started := s.started
		scope := s.scope
		cancel := s.cancel
		wasOpen := s.status == entities.SessionStatusOpen
		s.mu.Unlock()

		if started {
			s.stopLoop()
		}

		ctx, cancelRelease := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancelRelease()

		if scope != nil {
			if err := scope.Release(ctx); err != nil {
				s.logger.Warn("Failed to release devices", zap.Error(err))
			}
		}
		if t := s.relay.detach(); t != nil {
			if err := t.Close(); err != nil {
				s.logger.Debug("Socket close returned error", zap.Error(err))
			}
		}
		if cancel != nil {
			cancel()
		}

		endedAt := s.now()
		s.mu.Lock()
		s.status = status
		s.lastErr = cause
		startedAt := s.startedAt
		s.mu.Unlock()

		if wasOpen {
			s.metrics.RecordSessionEnd(string(status), endedAt.Sub(startedAt).Seconds())
			s.archive(ctx, status, startedAt, endedAt)
		}

		s.logger.Info("Session ended",
			zap.String("status", string(status)),
			zap.Error(cause))
		close(s.done)
	})
}

// releaseLate undoes a startup that completed after teardown had begun
func (s *VoiceSession) releaseLate(scope *saga.Scope) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := scope.Release(ctx); err != nil {
		s.logger.Warn("Failed to release devices", zap.Error(err))
	}
	if t := s.relay.detach(); t != nil {
		_ = t.Close()
	}
}

func (s *VoiceSession) archive(ctx context.Context, status entities.SessionStatus, startedAt, endedAt time.Time) {
	if s.deps.Archive == nil {
		return
	}

	s.mu.RLock()
	backendID := s.backendID
	prefs := s.prefs
	s.mu.RUnlock()

	frames := s.frameCounts()
	record := &entities.SessionRecord{
		ID:               s.id,
		BackendSessionID: backendID,
		StartedAt:        startedAt,
		EndedAt:          endedAt,
		Status:           status,
		Preferences:      prefs,
		Messages:         s.transcript.Entries(),
		FramesSent:       int(frames.Sent),
		FramesDropped:    int(frames.Dropped),
	}
	if err := s.deps.Archive.Save(ctx, record); err != nil {
		s.logger.Warn("Failed to archive session", zap.Error(err))
		return
	}
	s.logger.Debug("Session archived", zap.Int("messages", len(record.Messages)))
}

func (s *VoiceSession) applyPreferences(p entities.SessionPreferences) error {
	if p.Speed != 0 {
		if _, err := s.SetSpeed(p.Speed); err != nil {
			return err
		}
	}
	if p.Persona != "" {
		verbosity := p.Verbosity
		if verbosity == "" {
			verbosity = entities.VerbosityNormal
		}
		if _, err := s.SetSystemPrompt(p.Persona, verbosity); err != nil {
			return err
		}
	}
	return nil
}

func (s *VoiceSession) enqueue(cmd commands.Command) (bool, error) {
	kind := cmd.Kind().String()

	s.mu.RLock()
	closing := s.closing
	s.mu.RUnlock()
	if closing {
		return false, ErrSessionClosed
	}

	if err := cmd.Validate(); err != nil {
		s.metrics.RecordCommand(kind, "rejected")
		return false, fmt.Errorf("invalid %s command: %w", kind, err)
	}

	sent, err := s.queue.Enqueue(cmd)
	switch {
	case err != nil:
		s.metrics.RecordCommand(kind, "failed")
	case sent:
		s.metrics.RecordCommand(kind, "sent")
	default:
		s.metrics.RecordCommand(kind, "queued")
	}
	return sent, err
}

// observeFrame runs on the loop goroutine after each frame
func (s *VoiceSession) observeFrame(outcome audio.FrameOutcome) {
	switch outcome {
	case audio.FrameSent:
		s.sent.Add(1)
	case audio.FrameDropped:
		s.dropped.Add(1)
	case audio.FrameFailed:
		s.failed.Add(1)
	}
	s.metrics.RecordFrame(outcome.String())

	allocated := s.pool.Allocated()
	s.metrics.RecordPoolAllocations(allocated - s.allocSeen)
	s.allocSeen = allocated
}

func (s *VoiceSession) frameCounts() FrameCounts {
	return FrameCounts{
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
		Failed:  s.failed.Load(),
	}
}

func failureStatus(err error) entities.SessionStatus {
	if errors.Is(err, auth.ErrAuthRequired) || errors.Is(err, auth.ErrUnauthorized) {
		return entities.SessionStatusNeedsReauth
	}
	return entities.SessionStatusNeedsReconnect
}

// meteredPlayback counts samples on their way to the speaker
type meteredPlayback struct {
	repositories.PlaybackProcessor
	metrics *metrics.Metrics
}

func (p meteredPlayback) Enqueue(samples []int16) {
	p.metrics.RecordTTSSamples(len(samples))
	p.PlaybackProcessor.Enqueue(samples)
}
