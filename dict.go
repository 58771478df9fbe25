package coldb

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/submergedb/coldb/errors"
)

// Dict entries are stored as one or more integer components per entry. Ints
// and flos have a single value component; bins have a prefix and a length,
// plus a hash and heap offset when any bin in the chunk is longer than its
// prefix.
const (
	componentValue = iota
	componentBinLen
	componentBinHash
	componentBinOffset

	shortBinComponents = 2
	largeBinComponents = 4
	binPrefixLen       = 8
)

var binComponentNames = [...]string{"prefix", "len", "hash", "offset"}

func componentName(typ LogicalType, component int) string {
	if typ == Bin {
		return binComponentNames[component]
	}
	return typ.String()
}

func intComponents(vals []int64, _ *heap) [][]int64 {
	return [][]int64{vals}
}

func floComponents(vals []float64, _ *heap) [][]int64 {
	bits := make([]int64, len(vals))
	for i, v := range vals {
		bits[i] = int64(math.Float64bits(v))
	}
	return [][]int64{bits}
}

func binComponents(vals [][]byte, h *heap) [][]int64 {
	n := shortBinComponents
	for _, v := range vals {
		if len(v) > binPrefixLen {
			n = largeBinComponents
			break
		}
	}
	out := make([][]int64, n)
	for c := range out {
		out[c] = make([]int64, len(vals))
	}
	for i, v := range vals {
		out[componentValue][i] = binPrefix(v)
		out[componentBinLen][i] = int64(len(v))
		if n == largeBinComponents {
			// A 16-bit hash is enough to reject nearly all candidates that
			// already share a length and prefix.
			out[componentBinHash][i] = int64(xxhash.Sum64(v) & 0xffff)
			if len(v) > binPrefixLen {
				out[componentBinOffset][i] = int64(h.add(v))
			}
		}
	}
	return out
}

// binPrefix reads the first eight bytes of b, zero padded, as a big-endian
// integer so that prefixes compare like the bytes they came from.
func binPrefix(b []byte) int64 {
	var buf [binPrefixLen]byte
	copy(buf[:], b)
	return int64(binary.BigEndian.Uint64(buf[:]))
}

func intsFromComponents(comps [][]int64, _ []byte) ([]int64, error) {
	return comps[componentValue], nil
}

func flosFromComponents(comps [][]int64, _ []byte) ([]float64, error) {
	out := make([]float64, len(comps[componentValue]))
	for i, b := range comps[componentValue] {
		out[i] = math.Float64frombits(uint64(b))
	}
	return out, nil
}

func binsFromComponents(comps [][]int64, heapData []byte) ([][]byte, error) {
	out := make([][]byte, len(comps[componentValue]))
	for i, prefix := range comps[componentValue] {
		n := comps[componentBinLen][i]
		if n < 0 {
			return nil, errors.Newf(errors.ErrCorrupt, "negative bin length %d", n)
		}
		if n <= binPrefixLen {
			var buf [binPrefixLen]byte
			binary.BigEndian.PutUint64(buf[:], uint64(prefix))
			out[i] = bytes.Clone(buf[:n])
			continue
		}
		if len(comps) < largeBinComponents {
			return nil, errors.Newf(errors.ErrCorrupt, "bin of %d bytes in a chunk without heap offsets", n)
		}
		off := comps[componentBinOffset][i]
		if off < 0 || off+n > int64(len(heapData)) {
			return nil, errors.Newf(errors.ErrCorrupt, "bin at heap offset %d length %d overruns heap of %d bytes", off, n, len(heapData))
		}
		out[i] = bytes.Clone(heapData[off : off+n])
	}
	return out, nil
}

func compareFlo(a, b float64) int {
	if c := cmp.Compare(a, b); c != 0 {
		return c
	}
	return cmp.Compare(math.Float64bits(a), math.Float64bits(b))
}

func floKey(f float64) uint64 { return math.Float64bits(f) }

func binKey(b []byte) string { return string(b) }

func identity[T any](v T) T { return v }
