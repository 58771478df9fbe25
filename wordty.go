package coldb

import (
	"github.com/submergedb/coldb/internal/bitmap"
)

// wordTy is the width of the frame-of-reference words in one chunk.
type wordTy uint8

const (
	word1 wordTy = iota
	word2
	word4
	word8
)

func (t wordTy) len() int { return 1 << t }

// selectMinAndTy picks the frame-of-reference base for vals, taken as
// unsigned, and the narrowest word that holds every val minus that base.
func selectMinAndTy(vals []int64) (uint64, wordTy) {
	if len(vals) == 0 {
		return 0, word1
	}
	lo := uint64(vals[0])
	for _, v := range vals[1:] {
		lo = min(lo, uint64(v))
	}
	deltas := make([]uint64, len(vals))
	for i, v := range vals {
		deltas[i] = uint64(v) - lo
	}
	width, shift := byteWidthAndShift(deltas)
	switch width += shift; {
	case width <= 1:
		return lo, word1
	case width == 2:
		return lo, word2
	case width <= 4:
		return lo, word4
	default:
		return lo, word8
	}
}

// wordTy256 holds one wordTy per chunk of a track.
type wordTy256 struct {
	bitmaps bitmap.DoubleBitmap256
}

func (w *wordTy256) get(i uint8) wordTy    { return wordTy(w.bitmaps.Get(i)) }
func (w *wordTy256) set(i uint8, t wordTy) { w.bitmaps.Set(i, uint8(t)) }
