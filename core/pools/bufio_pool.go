package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// Buffer sizes for per-connection readers and writers.
const (
	DefaultReaderSize = 4 * 1024
	DefaultWriterSize = 4 * 1024
)

// BufioPool recycles bufio readers and writers across connections.
type BufioPool struct {
	readers sync.Pool
	writers sync.Pool

	// Statistics
	gets   atomic.Uint64
	allocs atomic.Uint64
}

// NewBufioPool creates a pool; non-positive sizes fall back to the defaults.
func NewBufioPool(readerSize, writerSize int) *BufioPool {
	if readerSize <= 0 {
		readerSize = DefaultReaderSize
	}
	if writerSize <= 0 {
		writerSize = DefaultWriterSize
	}

	bp := &BufioPool{}
	bp.readers.New = func() any {
		bp.allocs.Add(1)
		return bufio.NewReaderSize(nil, readerSize)
	}
	bp.writers.New = func() any {
		bp.allocs.Add(1)
		return bufio.NewWriterSize(nil, writerSize)
	}
	return bp
}

// GetReader returns a reader positioned on r.
func (bp *BufioPool) GetReader(r io.Reader) *bufio.Reader {
	bp.gets.Add(1)
	br := bp.readers.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// PutReader releases br; it must not be used afterwards.
func (bp *BufioPool) PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	bp.readers.Put(br)
}

// GetWriter returns a writer flushing into w.
func (bp *BufioPool) GetWriter(w io.Writer) *bufio.Writer {
	bp.gets.Add(1)
	bw := bp.writers.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// PutWriter releases bw; unflushed data is discarded.
func (bp *BufioPool) PutWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	bp.writers.Put(bw)
}

// Stats returns pool statistics
func (bp *BufioPool) Stats() BufioStats {
	gets := bp.gets.Load()
	allocs := bp.allocs.Load()
	hitRate := 0.0
	if gets > 0 && gets >= allocs {
		hitRate = float64(gets-allocs) / float64(gets)
	}
	return BufioStats{
		Gets:    gets,
		Allocs:  allocs,
		HitRate: hitRate,
	}
}

// BufioStats contains bufio pool statistics
type BufioStats struct {
	Gets    uint64  `json:"gets"`
	Allocs  uint64  `json:"allocs"`
	HitRate float64 `json:"hit_rate"`
}
