package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/repositories"
	pcm "github.com/satriahrh/arunika/client/internal/audio"
)

// Capture replays a fixed sample source as a microphone, delivering chunks of
// the configured sizes in rotation. Irregular sizes mimic a real audio
// callback that never lines up with the frame batch.
type Capture struct {
	load     func() ([]int16, error)
	chunks   []int
	realtime bool
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ repositories.CaptureProcessor = (*Capture)(nil)

// CaptureOption configures a Capture
type CaptureOption func(*Capture)

// WithRealtime paces delivery at the wire sample rate. Enabled by default.
func WithRealtime(enabled bool) CaptureOption {
	return func(c *Capture) { c.realtime = enabled }
}

// NewWAVCapture reads samples from a WAV file when started
func NewWAVCapture(path string, chunks []int, logger *zap.Logger, opts ...CaptureOption) *Capture {
	return newCapture(func() ([]int16, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadWAV(f)
	}, chunks, logger, opts...)
}

// NewSampleCapture delivers the given samples
func NewSampleCapture(samples []int16, chunks []int, logger *zap.Logger, opts ...CaptureOption) *Capture {
	return newCapture(func() ([]int16, error) { return samples, nil }, chunks, logger, opts...)
}

// NewSilenceCapture delivers d worth of silence
func NewSilenceCapture(d time.Duration, chunks []int, logger *zap.Logger, opts ...CaptureOption) *Capture {
	n := int(d.Seconds() * pcm.SampleRate)
	return newCapture(func() ([]int16, error) { return make([]int16, n), nil }, chunks, logger, opts...)
}

func newCapture(load func() ([]int16, error), chunks []int, logger *zap.Logger, opts ...CaptureOption) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(chunks) == 0 {
		chunks = []int{480}
	}
	c := &Capture{load: load, chunks: chunks, realtime: true, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads the source and begins delivering chunks to sink
func (c *Capture) Start(ctx context.Context, sink func([]int16)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return errors.New("capture already started")
	}

	samples, err := c.load()
	if err != nil {
		return fmt.Errorf("failed to open capture source: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, samples, sink, c.done)

	c.logger.Info("Capture started",
		zap.Int("samples", len(samples)),
		zap.Bool("realtime", c.realtime))
	return nil
}

// Close stops delivery and waits for the worker to exit
func (c *Capture) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Capture) run(ctx context.Context, samples []int16, sink func([]int16), done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for i, off := 0, 0; off < len(samples); i++ {
		n := c.chunks[i%len(c.chunks)]
		end := min(off+n, len(samples))

		// sink owns the chunk
		chunk := make([]int16, end-off)
		copy(chunk, samples[off:end])
		off = end

		if c.realtime {
			wait := time.Duration(len(chunk)) * time.Second / pcm.SampleRate
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		sink(chunk)
	}

	c.logger.Debug("Capture source exhausted")
}
