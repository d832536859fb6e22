package audio

import (
	"encoding/binary"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/repositories"
)

const (
	// SampleRate is the nominal capture rate in Hz
	SampleRate = 24000

	// BatchSamples is the number of samples carried by one frame
	BatchSamples = 2048

	// HeaderBytes is the timestamp + flags header length
	HeaderBytes = 8

	// PayloadBytes is the PCM payload length of one frame
	PayloadBytes = BatchSamples * 2

	// FrameBytes is the exact size of every transmitted frame
	FrameBytes = HeaderBytes + PayloadBytes

	// FlagPlaybackActive is set when synthesized speech was audible at completion
	FlagPlaybackActive uint32 = 1 << 0
)

// FrameSender transmits a completed frame. The frame must be consumed before
// SendFrame returns.
type FrameSender interface {
	SendFrame(frame []byte) error
}

// FrameOutcome is what happened to a completed frame
type FrameOutcome int

const (
	FrameSent FrameOutcome = iota
	FrameDropped
	FrameFailed
)

func (o FrameOutcome) String() string {
	switch o {
	case FrameSent:
		return "sent"
	case FrameDropped:
		return "dropped"
	case FrameFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FrameStats counts frames by outcome
type FrameStats struct {
	Sent    int `json:"sent"`
	Dropped int `json:"dropped"`
	Failed  int `json:"failed"`
	Flushed int `json:"flushed"`
}

// FrameBuilder packs a sample stream into fixed-size frames. It holds at
// most one partially filled buffer and is not safe for concurrent use.
type FrameBuilder struct {
	pool    *BufferPool
	sender  FrameSender
	playing func() bool
	now     func() time.Time
	observe func(FrameOutcome)
	logger  *zap.Logger

	buf    []byte
	offset int // samples written into buf

	stats FrameStats
}

// FrameBuilderOption configures a FrameBuilder
type FrameBuilderOption func(*FrameBuilder)

// WithClock overrides the wall clock used for header timestamps
func WithClock(now func() time.Time) FrameBuilderOption {
	return func(b *FrameBuilder) { b.now = now }
}

// WithObserver registers a callback invoked once per completed frame
func WithObserver(fn func(FrameOutcome)) FrameBuilderOption {
	return func(b *FrameBuilder) { b.observe = fn }
}

// WithLogger sets the builder logger
func WithLogger(logger *zap.Logger) FrameBuilderOption {
	return func(b *FrameBuilder) { b.logger = logger }
}

// NewFrameBuilder creates a builder drawing buffers from pool. playing is
// read when each frame completes.
func NewFrameBuilder(pool *BufferPool, sender FrameSender, playing func() bool, opts ...FrameBuilderOption) *FrameBuilder {
	b := &FrameBuilder{
		pool:    pool,
		sender:  sender,
		playing: playing,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.playing == nil {
		b.playing = func() bool { return false }
	}
	return b
}

// Append copies samples into frames, transmitting each frame as it fills.
// The whole chunk is consumed before returning; the number of frames
// completed is returned.
func (b *FrameBuilder) Append(samples []int16) int {
	frames := 0
	for len(samples) > 0 {
		if b.buf == nil {
			b.buf = b.pool.Get()
		}

		n := min(BatchSamples-b.offset, len(samples))
		base := HeaderBytes + b.offset*2
		for i, s := range samples[:n] {
			binary.LittleEndian.PutUint16(b.buf[base+i*2:], uint16(s))
		}
		b.offset += n
		samples = samples[n:]

		if b.offset == BatchSamples {
			b.finalize()
			frames++
		}
	}
	return frames
}

// Flush zero-pads and transmits the partial frame. It reports false when
// nothing was pending.
func (b *FrameBuilder) Flush() bool {
	if b.buf == nil || b.offset == 0 {
		return false
	}

	clear(b.buf[HeaderBytes+b.offset*2:])
	b.stats.Flushed++
	b.finalize()
	return true
}

// Pending returns the number of samples waiting in the partial frame
func (b *FrameBuilder) Pending() int {
	return b.offset
}

// Stats returns frame counters
func (b *FrameBuilder) Stats() FrameStats {
	return b.stats
}

func (b *FrameBuilder) finalize() {
	buf := b.buf
	b.buf = nil
	b.offset = 0

	var flags uint32
	if b.playing() {
		flags |= FlagPlaybackActive
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(b.now().UnixMilli()))
	binary.BigEndian.PutUint32(buf[4:8], flags)

	outcome := FrameSent
	if err := b.sender.SendFrame(buf); err != nil {
		if errors.Is(err, repositories.ErrTransportNotOpen) {
			outcome = FrameDropped
		} else {
			outcome = FrameFailed
			b.logger.Warn("Failed to send audio frame", zap.Error(err))
		}
	}

	b.pool.Put(buf)

	switch outcome {
	case FrameSent:
		b.stats.Sent++
	case FrameDropped:
		b.stats.Dropped++
	case FrameFailed:
		b.stats.Failed++
	}
	if b.observe != nil {
		b.observe(outcome)
	}
}

// ParseHeader extracts the timestamp and flag word of a frame
func ParseHeader(frame []byte) (timestamp uint32, flags uint32, ok bool) {
	if len(frame) < HeaderBytes {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(frame[0:4]), binary.BigEndian.Uint32(frame[4:8]), true
}
