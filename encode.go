package coldb

import (
	"slices"

	"github.com/submergedb/coldb/errors"
)

// dictEncode returns the distinct values of vals in ascending order of cmp,
// and the index into that dictionary of every row. key must agree with cmp
// on equality.
func dictEncode[T any, K comparable](vals []T, key func(T) K, cmp func(a, b T) int) ([]T, []uint16, error) {
	if len(vals) > MaxTrackRows {
		return nil, nil, errors.Newf(errors.ErrTooManyRows, "track of %d rows is longer than %d", len(vals), MaxTrackRows)
	}
	seen := make(map[K]struct{}, len(vals))
	dict := make([]T, 0)
	for _, v := range vals {
		k := key(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			dict = append(dict, v)
		}
	}
	slices.SortFunc(dict, cmp)
	codes := make(map[K]uint16, len(dict))
	for i, v := range dict {
		codes[key(v)] = uint16(i)
	}
	out := make([]uint16, len(vals))
	for i, v := range vals {
		out[i] = codes[key(v)]
	}
	return dict, out, nil
}

// runEndEncode collapses vals into runs of equal values, returning the value
// of each run and the index of its last row.
func runEndEncode[T comparable](vals []T) ([]T, []uint16, error) {
	if len(vals) > MaxTrackRows {
		return nil, nil, errors.Newf(errors.ErrTooManyRows, "track of %d rows is longer than %d", len(vals), MaxTrackRows)
	}
	var runVals []T
	var runEnds []uint16
	for i, v := range vals {
		if i == len(vals)-1 || vals[i+1] != v {
			runVals = append(runVals, v)
			runEnds = append(runEnds, uint16(i))
		}
	}
	return runVals, runEnds, nil
}

// posVirtBaseAndFactor reports whether every value is base+row*factor for a
// factor of zero or more. Fewer than two values are better stored explicitly.
func posVirtBaseAndFactor(vals []int64) (base, factor int64, ok bool) {
	if len(vals) < 2 {
		return 0, 0, false
	}
	base = vals[0]
	factor = vals[1] - vals[0]
	if factor < 0 {
		// Negative factors mean row/n.
		return 0, 0, false
	}
	for i := 2; i < len(vals); i++ {
		if vals[i]-vals[i-1] != factor {
			return 0, 0, false
		}
	}
	return base, factor, true
}

// negVirtBaseAndFactor reports whether every value is base+row/n, that is a
// sequence of n-row runs ascending by one, where only the final run may be
// shorter. The factor returned is -n.
func negVirtBaseAndFactor(vals []int64) (base, factor int64, ok bool) {
	if len(vals) < 2 {
		return 0, 0, false
	}
	base = vals[0]
	prev := vals[0]
	var runs, currRunLen, prevRunLen int64 = 0, 1, 0
	for _, v := range vals[1:] {
		switch {
		case v == prev:
			currRunLen++
		case prev+1 != v:
			return 0, 0, false
		default:
			if runs != 0 && prevRunLen != currRunLen {
				return 0, 0, false
			}
			prev = v
			prevRunLen = currRunLen
			currRunLen = 1
			runs++
		}
	}
	if runs == 0 || currRunLen > prevRunLen {
		return 0, 0, false
	}
	return base, -prevRunLen, true
}

// virtValue reconstructs row of an implicit track.
func virtValue(base, factor int64, row int) int64 {
	if factor >= 0 {
		return base + int64(row)*factor
	}
	return base + int64(row)/(-factor)
}

// byteWidthAndShift returns the number of bytes, and the number of all-zero
// low bytes, needed to reconstruct every value in vals.
func byteWidthAndShift(vals []uint64) (width, shift uint8) {
	var accum uint64
	for _, v := range vals {
		accum |= v
	}
	for accum != 0 && accum&0xff == 0 {
		shift++
		accum >>= 8
	}
	for accum != 0 {
		width++
		accum >>= 8
	}
	return width, shift
}
