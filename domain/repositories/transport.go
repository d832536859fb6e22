package repositories

import (
	"context"
	"errors"
	"net/http"

	"github.com/satriahrh/arunika/client/domain"
)

// Transport is an open duplex socket to the voice backend
type Transport interface {
	// SendFrame writes one binary frame synchronously. The frame may be
	// reused by the caller as soon as SendFrame returns.
	SendFrame(frame []byte) error
	SendControl(msg domain.ControlMessage) error
	IsOpen() bool
	Close() error
	Done() <-chan struct{}
}

// Dialer opens transports. onMessage receives every inbound message in
// arrival order from a single goroutine.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header, onMessage func(messageType int, data []byte)) (Transport, error)
}

// ErrTransportNotOpen is returned by sends attempted while the socket is not open
var ErrTransportNotOpen = errors.New("transport not open")
