// Package bitmap implements the fixed 256-bit bitmaps used for chunk
// populations and per-chunk flags inside tracks.
package bitmap

import (
	"encoding/binary"
	"math"
	"math/bits"
)

const (
	// Size is the encoded size of a Bitmap256 in bytes.
	Size = 32
	// DoubleSize is the encoded size of a DoubleBitmap256 in bytes.
	DoubleSize = 2 * Size
)

// Bitmap256 is a 256-bit bitmap that counts bits in order from least to most
// significant bit and ascending words.
type Bitmap256 struct {
	Bits [4]uint64
}

func (b *Bitmap256) Set(i uint8, val bool) {
	if val {
		b.Bits[i/64] |= 1 << (i % 64)
	} else {
		b.Bits[i/64] &^= 1 << (i % 64)
	}
}

func (b *Bitmap256) Get(i uint8) bool {
	return b.Bits[i/64]&(1<<(i%64)) != 0
}

func (b *Bitmap256) SetAll() {
	b.Bits = [4]uint64{math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64}
}

func (b *Bitmap256) ClearAll() {
	b.Bits = [4]uint64{}
}

func (b *Bitmap256) Count() int {
	n := 0
	for _, w := range b.Bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Rank returns the number of set bits at positions 0 through i inclusive.
func (b *Bitmap256) Rank(i uint8) int {
	word := int(i / 64)
	n := 0
	for _, w := range b.Bits[:word] {
		n += bits.OnesCount64(w)
	}
	shift := 63 - uint(i%64)
	return n + bits.OnesCount64(b.Bits[word]<<shift)
}

func (b *Bitmap256) IsEmpty() bool { return b.Bits == [4]uint64{} }

func (b *Bitmap256) Any() bool { return !b.IsEmpty() }

func (b *Bitmap256) IsFull() bool {
	for _, w := range b.Bits {
		if w != math.MaxUint64 {
			return false
		}
	}
	return true
}

func (b *Bitmap256) Union(other *Bitmap256) {
	for i := range b.Bits {
		b.Bits[i] |= other.Bits[i]
	}
}

func (b *Bitmap256) Intersect(other *Bitmap256) {
	for i := range b.Bits {
		b.Bits[i] &= other.Bits[i]
	}
}

func (b *Bitmap256) Subtract(other *Bitmap256) {
	for i := range b.Bits {
		b.Bits[i] &^= other.Bits[i]
	}
}

// AppendTo appends the 32-byte little-endian encoding of b to p.
func (b *Bitmap256) AppendTo(p []byte) []byte {
	for _, w := range b.Bits {
		p = binary.LittleEndian.AppendUint64(p, w)
	}
	return p
}

// Decode reads a Bitmap256 from the first 32 bytes of p.
func Decode(p []byte) Bitmap256 {
	var b Bitmap256
	for i := range b.Bits {
		b.Bits[i] = binary.LittleEndian.Uint64(p[8*i:])
	}
	return b
}

// DoubleBitmap256 stores 256 two-bit values in the range 0..3 using two
// bitmaps.
type DoubleBitmap256 struct {
	Lo, Hi Bitmap256
}

func (d *DoubleBitmap256) Set(i uint8, val uint8) {
	d.Lo.Set(i, val&1 != 0)
	d.Hi.Set(i, val&2 != 0)
}

func (d *DoubleBitmap256) Get(i uint8) uint8 {
	var v uint8
	if d.Lo.Get(i) {
		v |= 1
	}
	if d.Hi.Get(i) {
		v |= 2
	}
	return v
}

// AppendTo appends the lo bitmap then the hi bitmap.
func (d *DoubleBitmap256) AppendTo(p []byte) []byte {
	p = d.Lo.AppendTo(p)
	return d.Hi.AppendTo(p)
}

// DecodeDouble reads a DoubleBitmap256 from the first 64 bytes of p.
func DecodeDouble(p []byte) DoubleBitmap256 {
	return DoubleBitmap256{Lo: Decode(p), Hi: Decode(p[Size:])}
}
