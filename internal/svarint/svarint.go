// Package svarint implements the big-endian variable-length integers used to
// frame messages between nodes: seven bits per byte with a continuation high
// bit, and a ninth byte carrying a full eight bits.
package svarint

import (
	"io"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Append appends the encoding of x to buf.
func Append[T constraints.Integer](buf []byte, x T) []byte {
	xl := 64 - bits.LeadingZeros64(uint64(x))
	switch {
	case xl <= 7:
		return append(buf, byte(x))
	case xl <= 14:
		return append(buf, byte(x>>7)|0x80, byte(x)&^0x80)
	case xl <= 21:
		return append(buf, byte(x>>14)|0x80, byte(x>>7)|0x80, byte(x)&^0x80)
	case xl <= 28:
		return append(buf, byte(x>>21)|0x80, byte(x>>14)|0x80, byte(x>>7)|0x80, byte(x)&^0x80)
	case xl <= 35:
		return append(buf, byte(x>>28)|0x80, byte(x>>21)|0x80, byte(x>>14)|0x80, byte(x>>7)|0x80, byte(x)&^0x80)
	case xl <= 42:
		return append(buf, byte(x>>35)|0x80, byte(x>>28)|0x80, byte(x>>21)|0x80, byte(x>>14)|0x80, byte(x>>7)|0x80, byte(x)&^0x80)
	case xl <= 49:
		return append(buf, byte(x>>42)|0x80, byte(x>>35)|0x80, byte(x>>28)|0x80, byte(x>>21)|0x80, byte(x>>14)|0x80, byte(x>>7)|0x80, byte(x)&^0x80)
	case xl <= 56:
		return append(buf, byte(x>>49)|0x80, byte(x>>42)|0x80, byte(x>>35)|0x80, byte(x>>28)|0x80, byte(x>>21)|0x80, byte(x>>14)|0x80, byte(x>>7)|0x80, byte(x)&^0x80)
	default:
		return append(buf, byte(x>>57)|0x80, byte(x>>50)|0x80, byte(x>>43)|0x80, byte(x>>36)|0x80, byte(x>>29)|0x80, byte(x>>22)|0x80, byte(x>>15)|0x80, byte(x>>8)|0x80, byte(x))
	}
}

// Length returns the encoded length of x.
func Length[T constraints.Integer](x T) int {
	xl := 64 - bits.LeadingZeros64(uint64(x))
	switch {
	case xl <= 7:
		return 1
	case xl <= 14:
		return 2
	case xl <= 21:
		return 3
	case xl <= 28:
		return 4
	case xl <= 35:
		return 5
	case xl <= 42:
		return 6
	case xl <= 49:
		return 7
	case xl <= 56:
		return 8
	default:
		return 9
	}
}

// MaxLen is the longest possible encoding.
const MaxLen = 9

// Decode returns the value encoded at the start of buf and the number of bytes
// it occupies. n is 0 if buf ends before the encoding does.
func Decode(buf []byte) (x uint64, n int) {
	for i, b := range buf {
		if i == MaxLen-1 {
			return x<<8 | uint64(b), MaxLen
		}
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return x, i + 1
		}
	}
	return 0, 0
}

// ReadFrom decodes one value from r.
func ReadFrom(r io.ByteReader) (uint64, error) {
	var x uint64
	for i := 0; i < MaxLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if i == MaxLen-1 {
			return x<<8 | uint64(b), nil
		}
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return x, nil
		}
	}
	return x, nil
}
