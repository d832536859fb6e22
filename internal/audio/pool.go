package audio

import "sync"

// BufferPool recycles fixed-size frame buffers. Get never blocks: an empty
// pool allocates, so the pool bounds garbage rather than throughput.
type BufferPool struct {
	mu        sync.Mutex
	size      int
	free      [][]byte
	allocated int
}

// NewBufferPool creates a pool of size-byte buffers with prealloc ready for use
func NewBufferPool(size, prealloc int) *BufferPool {
	p := &BufferPool{
		size: size,
		free: make([][]byte, 0, prealloc),
	}
	for i := 0; i < prealloc; i++ {
		p.free = append(p.free, make([]byte, size))
		p.allocated++
	}
	return p
}

// Get pops a zeroed buffer, allocating when the pool is empty
func (p *BufferPool) Get() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return buf
	}

	p.allocated++
	return make([]byte, p.size)
}

// Put zeroes buf and returns it to the pool. Buffers of another size are dropped.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}
	clear(buf)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf)
}

// Len returns the number of idle buffers
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Allocated returns how many buffers the pool has ever created
func (p *BufferPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Size returns the buffer length handed out by Get
func (p *BufferPool) Size() int {
	return p.size
}
