package coldb

import (
	"bytes"
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/submergedb/coldb/errors"
)

func TestPosVirtBaseAndFactor(t *testing.T) {
	tests := []struct {
		vals         []int64
		base, factor int64
		ok           bool
	}{
		{vals: []int64{2, 6, 10, 14, 18}, base: 2, factor: 4, ok: true},
		{vals: []int64{7, 7, 7}, base: 7, factor: 0, ok: true},
		{vals: []int64{10, 8, 6}},
		{vals: []int64{1, 2, 4}},
		{vals: []int64{1}},
		{vals: nil},
	}
	for _, test := range tests {
		base, factor, ok := posVirtBaseAndFactor(test.vals)
		assert.Equal(t, test.ok, ok, "%v", test.vals)
		assert.Equal(t, test.base, base, "%v", test.vals)
		assert.Equal(t, test.factor, factor, "%v", test.vals)
	}
}

func TestNegVirtBaseAndFactor(t *testing.T) {
	_, _, ok := negVirtBaseAndFactor([]int64{2, 2, 3, 3, 3})
	assert.False(t, ok)

	base, factor, ok := negVirtBaseAndFactor([]int64{2, 2, 2, 3, 3, 3, 4, 4, 4, 5, 5})
	require.True(t, ok)
	assert.Equal(t, int64(2), base)
	assert.Equal(t, int64(-3), factor)

	_, _, ok = negVirtBaseAndFactor([]int64{4, 4, 4})
	assert.False(t, ok, "no run transition")

	_, _, ok = negVirtBaseAndFactor([]int64{1, 1, 3, 3})
	assert.False(t, ok, "step of two")
}

func TestVirtValue(t *testing.T) {
	vals := []int64{2, 2, 2, 3, 3, 3, 4, 4, 4, 5, 5}
	for row, want := range vals {
		assert.Equal(t, want, virtValue(2, -3, row))
	}
	assert.Equal(t, int64(18), virtValue(2, 4, 4))
}

func TestByteWidthAndShift(t *testing.T) {
	tests := []struct {
		vals         []uint64
		width, shift uint8
	}{
		{vals: nil},
		{vals: []uint64{0}},
		{vals: []uint64{1}, width: 1},
		{vals: []uint64{0xfff}, width: 2},
		{vals: []uint64{0xff00}, width: 1, shift: 1},
		{vals: []uint64{0xff00ff00}, width: 3, shift: 1},
		{vals: []uint64{0xff00, 0x00ff}, width: 2},
	}
	for _, test := range tests {
		width, shift := byteWidthAndShift(test.vals)
		assert.Equal(t, test.width, width, "%x", test.vals)
		assert.Equal(t, test.shift, shift, "%x", test.vals)
	}
}

func TestSelectMinAndTy(t *testing.T) {
	tests := []struct {
		vals []int64
		min  uint64
		ty   wordTy
	}{
		{vals: nil, min: 0, ty: word1},
		{vals: []int64{5, 5}, min: 5, ty: word1},
		{vals: []int64{1000, 1255}, min: 1000, ty: word1},
		{vals: []int64{5, 300}, min: 5, ty: word2},
		{vals: []int64{0, 0xff00}, min: 0, ty: word2},
		{vals: []int64{0, 1 << 20}, min: 0, ty: word4},
		{vals: []int64{0, 1 << 40}, min: 0, ty: word8},
		{vals: []int64{-1, 1}, min: 1, ty: word8},
	}
	for _, test := range tests {
		lo, ty := selectMinAndTy(test.vals)
		assert.Equal(t, test.min, lo, "%v", test.vals)
		assert.Equal(t, test.ty, ty, "%v", test.vals)
	}
	assert.Equal(t, 8, word8.len())
}

func TestDictEncode(t *testing.T) {
	dict, codes, err := dictEncode([]int64{5, 5, 5, 6, 6, 6, 5, 6, 5, 3, 4, 2}, identity[int64], cmp.Compare[int64])
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, dict)
	assert.Equal(t, []uint16{3, 3, 3, 4, 4, 4, 3, 4, 3, 1, 2, 0}, codes)

	_, _, err = dictEncode(make([]int64, MaxTrackRows+1), identity[int64], cmp.Compare[int64])
	assert.True(t, errors.Is(err, errors.ErrTooManyRows))
}

func TestRunEndEncode(t *testing.T) {
	vals, ends, err := runEndEncode([]uint16{5, 5, 5, 6, 7, 7})
	require.NoError(t, err)
	assert.Equal(t, []uint16{5, 6, 7}, vals)
	assert.Equal(t, []uint16{2, 3, 5}, ends)

	vals, ends, err = runEndEncode([]uint16{9})
	require.NoError(t, err)
	assert.Equal(t, []uint16{9}, vals)
	assert.Equal(t, []uint16{0}, ends)

	vals, ends, err = runEndEncode([]uint16{})
	require.NoError(t, err)
	assert.Empty(t, vals)
	assert.Empty(t, ends)
}

func TestHeapDedupes(t *testing.T) {
	var h heap
	assert.Equal(t, 0, h.add([]byte("hello world")))
	assert.Equal(t, 6, h.add([]byte("world")))
	assert.Equal(t, 11, h.add([]byte("again")))
	assert.Equal(t, 0, h.add([]byte("hello")))
	assert.Equal(t, "hello worldagain", string(h.data))

	// Past the scan window only exact repeats are reused.
	filler := bytes.Repeat([]byte{'.'}, heapScanWindow)
	assert.Equal(t, 16, h.add(filler))
	assert.Equal(t, 0, h.add([]byte("hello world")))
	assert.Equal(t, 16+heapScanWindow, h.add([]byte("hello wor")))
}

func TestBinComponents(t *testing.T) {
	var h heap
	short := binComponents([][]byte{[]byte("ab"), {}}, &h)
	require.Len(t, short, shortBinComponents)
	assert.Equal(t, int64(0x6162000000000000), short[componentValue][0])
	assert.Equal(t, []int64{2, 0}, short[componentBinLen])
	assert.Empty(t, h.data)

	long := binComponents([][]byte{[]byte("ab"), []byte("0123456789")}, &h)
	require.Len(t, long, largeBinComponents)
	assert.Equal(t, []int64{0, 0}, long[componentBinOffset])
	assert.Equal(t, "0123456789", string(h.data))
	for _, hash := range long[componentBinHash] {
		assert.LessOrEqual(t, hash, int64(0xffff))
	}

	bins, err := binsFromComponents(long, h.data)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("ab"), []byte("0123456789")}, bins)
}

func TestCompareFlo(t *testing.T) {
	assert.Equal(t, -1, compareFlo(-1, 1))
	assert.Equal(t, 0, compareFlo(2.5, 2.5))
	assert.NotEqual(t, 0, compareFlo(0, negZero()))
}
