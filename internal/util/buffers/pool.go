// Package buffers provides reusable copy buffers for streaming uploads.
package buffers

import (
	"sync"
	"sync/atomic"
)

// CopyBufferSize is the size of buffers handed out by GetCopyBuffer.
const CopyBufferSize = 32 * 1024

var (
	copyAllocations int64
	copyGets        int64
)

// copyPool provides buffers for io.CopyBuffer while streaming multipart bodies.
var copyPool = &sync.Pool{
	New: func() interface{} {
		atomic.AddInt64(&copyAllocations, 1)
		buf := make([]byte, CopyBufferSize)
		return &buf
	},
}

// GetCopyBuffer retrieves a buffer from the pool.
//
// Usage:
//
//	buf := buffers.GetCopyBuffer()
//	defer buffers.PutCopyBuffer(buf)
//	_, err := io.CopyBuffer(dst, src, *buf)
func GetCopyBuffer() *[]byte {
	atomic.AddInt64(&copyGets, 1)
	return copyPool.Get().(*[]byte)
}

// PutCopyBuffer returns a buffer to the pool. Buffers of the wrong size are
// dropped. The buffer is cleared so file contents do not linger in the pool.
func PutCopyBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == CopyBufferSize {
		clear(*buf)
		copyPool.Put(buf)
	}
}

// Stats holds buffer pool counters.
type Stats struct {
	BufferSize  int
	Allocations int64 // new buffers created
	Gets        int64 // total GetCopyBuffer calls
}

// GetStats returns current buffer pool statistics.
func GetStats() Stats {
	return Stats{
		BufferSize:  CopyBufferSize,
		Allocations: atomic.LoadInt64(&copyAllocations),
		Gets:        atomic.LoadInt64(&copyGets),
	}
}
