// Package pool reuses byte buffers across request/response body reads to
// avoid an allocation on every proxied exchange.
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/linspirer/proxy/internal/assert"
)

// Metrics tracks pool hit/miss counters. Higher hit rates indicate better
// memory reuse under load.
type Metrics struct {
	Hits   uint64
	Misses uint64
}

var globalMetrics Metrics

// GetMetrics returns a snapshot of current pool metrics. Safe for concurrent
// access.
func GetMetrics() Metrics {
	// globalMetrics.Hits is bumped on every GetBuffer call, including those
	// that fall through to New, so the misses are subtracted out here.
	misses := atomic.LoadUint64(&globalMetrics.Misses)
	gets := atomic.LoadUint64(&globalMetrics.Hits)
	return Metrics{
		Hits:   gets - misses,
		Misses: misses,
	}
}

const maxBufferSize = 1024 * 1024 // 1MB cap; bodies larger than this aren't pooled

var bufferPool = sync.Pool{
	New: func() interface{} {
		atomic.AddUint64(&globalMetrics.Misses, 1)
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer acquires a reset bytes.Buffer from the pool. Always defer
// PutBuffer to avoid leaking capacity back to the GC.
func GetBuffer() *bytes.Buffer {
	if err := assert.Check(bufferPool.New != nil, "bufferPool.New must be defined"); err != nil {
		return bytes.NewBuffer(nil)
	}
	// Counted before Get so a miss recorded by New never outruns its get.
	atomic.AddUint64(&globalMetrics.Hits, 1)
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool after resetting it. Safe to call
// with nil. Buffers that grew past maxBufferSize are dropped instead of
// pooled, so one oversized body doesn't bloat the pool forever.
func PutBuffer(b *bytes.Buffer) {
	if b == nil {
		return
	}
	if b.Cap() > maxBufferSize {
		return
	}
	b.Reset()
	bufferPool.Put(b)
}
