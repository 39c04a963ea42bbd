// Package frame implements the binary wire framing used by the pulse
// detector's data channel. Each interval measurement travels as a fixed
// six-byte frame: a start sentinel, a little-endian uint32 payload in
// microseconds, and an end sentinel.
package frame

import (
	"encoding/binary"
	"io"
)

const (
	// StartByte marks the beginning of a frame on the wire.
	StartByte = 0xAA
	// EndByte marks the end of a frame on the wire.
	EndByte = 0x55
	// Size is the total length of one encoded frame in bytes.
	Size = 6

	payloadOffset = 1
	payloadLen    = 4
)

// EncodeValue encodes v as a complete wire frame.
func EncodeValue(v uint32) [Size]byte {
	var b [Size]byte
	b[0] = StartByte
	binary.LittleEndian.PutUint32(b[payloadOffset:payloadOffset+payloadLen], v)
	b[Size-1] = EndByte
	return b
}

// AppendValue appends the wire frame for v to dst and returns the
// extended slice.
func AppendValue(dst []byte, v uint32) []byte {
	b := EncodeValue(v)
	return append(dst, b[:]...)
}

// WriteValue writes the frame for v to w in a single Write call so the
// frame reaches the transport as one unit. A short write is reported as
// io.ErrShortWrite.
func WriteValue(w io.Writer, v uint32) error {
	b := EncodeValue(v)
	n, err := w.Write(b[:])
	if err != nil {
		return err
	}
	if n != Size {
		return io.ErrShortWrite
	}
	return nil
}
