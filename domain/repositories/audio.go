package repositories

import (
	"context"

	"github.com/satriahrh/arunika/client/domain"
)

// CaptureProcessor is a realtime microphone source. It pushes chunks of
// arbitrary length to sink until ctx is cancelled or Close is called.
type CaptureProcessor interface {
	Start(ctx context.Context, sink func(chunk []int16)) error
	Close() error
}

// PlaybackProcessor is a realtime speaker sink. Enqueue queues samples,
// Clear discards everything queued or buffered. Start/stop of audible output
// is reported through the signal callback.
type PlaybackProcessor interface {
	Start(ctx context.Context, signal func(domain.PlaybackSignal)) error
	Enqueue(samples []int16)
	Clear()
	Close() error
}
