package transport

import (
	"sync"
)

// bufferSize is large enough for an EDNS0-sized UDP datagram (RFC 6891
// commonly advertises 4096) while staying well clear of the largest
// realistic DNS-over-UDP payload.
const bufferSize = 4096

// bufferPool reuses receive buffers across UDPTransport.Receive calls so
// that each call does not allocate a fresh bufferSize-byte buffer; Receive
// still allocates a copy sized to the datagram it returns.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, bufferSize)
		return &buf
	},
}

// GetBuffer returns a pointer to a bufferSize-byte buffer from the pool.
// The caller must return it with PutBuffer (use defer).
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool for reuse. The caller must not use
// the buffer after calling PutBuffer.
func PutBuffer(bufPtr *[]byte) {
	buf := *bufPtr
	for i := range buf {
		buf[i] = 0
	}

	bufferPool.Put(bufPtr)
}
