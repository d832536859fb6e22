package usecase

import (
	"sync"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

// controlRelay is the stable send target handed to the controller,
// dispatcher, queue and frame builder. The socket behind it is attached
// once dialed and detached on teardown.
type controlRelay struct {
	mu        sync.RWMutex
	transport repositories.Transport
}

func newControlRelay() *controlRelay {
	return &controlRelay{}
}

func (r *controlRelay) attach(t repositories.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
}

// detach removes and returns the current transport, nil when none
func (r *controlRelay) detach() repositories.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.transport
	r.transport = nil
	return t
}

func (r *controlRelay) current() repositories.Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transport
}

func (r *controlRelay) IsOpen() bool {
	t := r.current()
	return t != nil && t.IsOpen()
}

func (r *controlRelay) SendControl(msg domain.ControlMessage) error {
	t := r.current()
	if t == nil {
		return repositories.ErrTransportNotOpen
	}
	return t.SendControl(msg)
}

func (r *controlRelay) SendFrame(frame []byte) error {
	t := r.current()
	if t == nil {
		return repositories.ErrTransportNotOpen
	}
	return t.SendFrame(frame)
}
