package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/repositories"
	pcm "github.com/satriahrh/arunika/client/internal/audio"
)

// Playback drains queued samples at the wire sample rate into a writer and
// reports ttsPlaybackStarted when audio begins and ttsPlaybackStopped when the
// queue runs dry. Clear empties the queue without reporting anything.
type Playback struct {
	out    io.Writer
	file   *os.File
	tick   time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	queue   []int16
	playing bool
	written uint32
	signal  func(domain.PlaybackSignal)
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

var _ repositories.PlaybackProcessor = (*Playback)(nil)

// PlaybackOption configures a Playback
type PlaybackOption func(*Playback)

// WithTick sets how often the queue is drained
func WithTick(d time.Duration) PlaybackOption {
	return func(p *Playback) { p.tick = d }
}

// NewDiscardPlayback plays into nowhere, keeping only the timing
func NewDiscardPlayback(logger *zap.Logger, opts ...PlaybackOption) *Playback {
	return newPlayback(io.Discard, nil, logger, opts...)
}

// NewWriterPlayback writes raw little-endian PCM to w
func NewWriterPlayback(w io.Writer, logger *zap.Logger, opts ...PlaybackOption) *Playback {
	return newPlayback(w, nil, logger, opts...)
}

// OpenFilePlayback creates a WAV file at path. The header is finalized on Close.
func OpenFilePlayback(path string, logger *zap.Logger, opts ...PlaybackOption) (*Playback, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create playback file: %w", err)
	}
	if err := WriteWAVHeader(f, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	return newPlayback(f, f, logger, opts...), nil
}

func newPlayback(out io.Writer, file *os.File, logger *zap.Logger, opts ...PlaybackOption) *Playback {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Playback{out: out, file: file, tick: 20 * time.Millisecond, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins draining and reporting to signal
func (p *Playback) Start(ctx context.Context, signal func(domain.PlaybackSignal)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("playback closed")
	}
	if p.done != nil {
		return errors.New("playback already started")
	}

	p.signal = signal
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Info("Playback started", zap.Duration("tick", p.tick))
	return nil
}

// Enqueue appends samples to the play queue
func (p *Playback) Enqueue(samples []int16) {
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, samples...)
	p.mu.Unlock()
}

// Clear drops everything queued
func (p *Playback) Clear() {
	p.mu.Lock()
	p.queue = p.queue[:0]
	p.playing = false
	p.mu.Unlock()
}

// Queued returns the number of samples waiting to play
func (p *Playback) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops the worker and finalizes the output file
func (p *Playback) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if p.file == nil {
		return nil
	}
	return p.finalizeFile()
}

func (p *Playback) finalizeFile() error {
	defer p.file.Close()

	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind playback file: %w", err)
	}
	if err := WriteWAVHeader(p.file, p.written); err != nil {
		return fmt.Errorf("failed to finalize wav header: %w", err)
	}
	return nil
}

func (p *Playback) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	perTick := max(1, int(int64(pcm.SampleRate)*int64(p.tick)/int64(time.Second)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(perTick)
		}
	}
}

func (p *Playback) drain(n int) {
	p.mu.Lock()
	var emit domain.PlaybackSignal
	var chunk []int16

	switch {
	case len(p.queue) > 0:
		if !p.playing {
			p.playing = true
			emit = domain.PlaybackStarted
		}
		n = min(n, len(p.queue))
		chunk = append(chunk, p.queue[:n]...)
		p.queue = p.queue[n:]
	case p.playing:
		p.playing = false
		emit = domain.PlaybackStopped
	}
	signal := p.signal
	p.mu.Unlock()

	if emit != "" && signal != nil {
		signal(emit)
	}
	if len(chunk) > 0 {
		data := pcm.EncodePCM16LE(chunk)
		if _, err := p.out.Write(data); err != nil {
			p.logger.Warn("Failed to write playback audio", zap.Error(err))
			return
		}
		p.mu.Lock()
		p.written += uint32(len(data))
		p.mu.Unlock()
	}
}
