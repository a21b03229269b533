// Package bufpool provides a pooled byte-buffer allocator. RangeReader's
// CopyTo and the corefiberd echo handler wired through AcceptServer both
// draw their scratch buffers from a Pool to avoid a fresh allocation per
// read.
//
// Grounded on pool.SyncPool[T] (pool/objpool.go): the generic sync.Pool
// wrapper survives unchanged in shape; the NUMA-aware variant in
// pool/bytepool.go and pool/base_bufferpool.go does not, since this
// runtime's Non-goals exclude DPDK/io_uring-class transports that would
// make NUMA placement worth the complexity (see DESIGN.md).
package bufpool

import "sync"

// Pool hands out []byte slices of a fixed size, recycling Put buffers.
type Pool struct {
	size int
	pool *sync.Pool
}

// New constructs a Pool whose Get returns buffers of exactly size bytes.
func New(size int) *Pool {
	return &Pool{
		size: size,
		pool: &sync.Pool{New: func() any { return make([]byte, size) }},
	}
}

// Get returns a buffer of the pool's configured size.
func (p *Pool) Get() []byte {
	buf := p.pool.Get().([]byte)
	if len(buf) != p.size {
		return make([]byte, p.size)
	}
	return buf
}

// Put returns buf to the pool. Buffers of the wrong size are discarded
// rather than pooled.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	p.pool.Put(buf[:p.size])
}
