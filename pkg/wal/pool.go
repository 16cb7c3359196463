package wal

import "sync"

// pool.go: reutilização de buffers de serialização para aliviar o GC

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 8192) // 8KB buffer
		return &buf
	},
}

// AcquireBuffer obtém um buffer de bytes do pool
func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// ReleaseBuffer devolve o buffer ao pool
func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
