package coldb

import "bytes"

// heapScanWindow is how far back from the end of the heap add looks for a
// substring match.
const heapScanWindow = 4096

// heap holds the bytes of bins longer than a prefix, shared by every chunk of
// a track. Identical byte strings are stored once; a string that occurs
// within the last heapScanWindow bytes of the heap is also reused.
type heap struct {
	data  []byte
	index map[string]int
}

// add returns the offset of b in the heap, appending it if it is not already
// present.
func (h *heap) add(b []byte) int {
	if pos, ok := h.index[string(b)]; ok {
		return pos
	}
	if h.index == nil {
		h.index = make(map[string]int)
	}
	lo := max(0, len(h.data)-heapScanWindow)
	if pos := bytes.Index(h.data[lo:], b); pos >= 0 {
		h.index[string(b)] = lo + pos
		return lo + pos
	}
	pos := len(h.data)
	h.data = append(h.data, b...)
	h.index[string(b)] = pos
	return pos
}
