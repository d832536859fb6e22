package audio

// PumpStats counts capture input seen by the pump
type PumpStats struct {
	Chunks  int `json:"chunks"`
	Samples int `json:"samples"`
	Frames  int `json:"frames"`
}

// Pump forwards capture chunks to a FrameBuilder in arrival order. It keeps
// no buffer of its own and must be driven from a single goroutine.
type Pump struct {
	builder *FrameBuilder
	stopped bool
	stats   PumpStats
}

// NewPump creates a pump feeding builder
func NewPump(builder *FrameBuilder) *Pump {
	return &Pump{builder: builder}
}

// Push hands chunk to the builder and returns the number of frames it completed
func (p *Pump) Push(chunk []int16) int {
	if p.stopped || len(chunk) == 0 {
		return 0
	}

	frames := p.builder.Append(chunk)
	p.stats.Chunks++
	p.stats.Samples += len(chunk)
	p.stats.Frames += frames
	return frames
}

// Stop flushes the partial frame once. Later calls and pushes are no-ops.
func (p *Pump) Stop() bool {
	if p.stopped {
		return false
	}
	p.stopped = true

	if p.builder.Flush() {
		p.stats.Frames++
		return true
	}
	return false
}

// Stopped reports whether Stop has run
func (p *Pump) Stopped() bool {
	return p.stopped
}

// Stats returns pump counters
func (p *Pump) Stats() PumpStats {
	return p.stats
}
