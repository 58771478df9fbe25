package coldb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/submergedb/coldb/errors"
)

func negZero() float64 { return math.Copysign(0, -1) }

// writeLayer runs fill against a fresh LayerWriter and returns the bytes.
func writeLayer(t *testing.T, fill func(lw *LayerWriter), opts ...Option) ([]byte, *LayerWriter) {
	t.Helper()
	var buf bytes.Buffer
	lw, err := NewLayerWriter(&buf, opts...)
	require.NoError(t, err)
	fill(lw)
	require.NoError(t, lw.Finish())
	assert.Equal(t, int64(buf.Len()), lw.Size())
	return buf.Bytes(), lw
}

func openLayer(t *testing.T, p []byte) *LayerReader {
	t.Helper()
	lr, err := OpenLayer(bytes.NewReader(p), int64(len(p)))
	require.NoError(t, err)
	return lr
}

func TestRoundTripOneBlock(t *testing.T) {
	ints := []int64{5, 5, 5, 6, 6, 6, 5, 6, 5, 3, 4, 2}
	floats := []float64{1.5, -2.25, 1.5, math.MaxFloat64, 0, 1.5, 7, 7, 7, 7, 7, 7}
	bins := [][]byte{
		[]byte(""), []byte("a"), []byte("short"), []byte("exactly8"),
		[]byte("a much longer bin value"), []byte("a much longer bin value"),
		[]byte("longer bin"), []byte("a"), []byte("bin"), []byte("\xff\x00"), []byte("a"), []byte("short"),
	}
	bits := []bool{true, false, false, true, true, true, false, false, true, false, true, true}

	p, _ := writeLayer(t, func(lw *LayerWriter) {
		require.NoError(t, lw.SetCatalogue([]Column{
			{Label: "n", Type: Int, Role: "key"},
			{Label: "x", Type: Flo},
			{Label: "s", Type: Bin},
			{Label: "b", Type: Bit},
		}))
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts(ints))
		require.NoError(t, bw.WriteFloats(floats))
		require.NoError(t, bw.WriteBins(bins))
		require.NoError(t, bw.WriteBits(bits))
		require.NoError(t, bw.Finish())
	})

	lr := openLayer(t, p)
	assert.Equal(t, int64(Version), lr.Version())
	assert.Equal(t, int64(12), lr.Rows())
	assert.Equal(t, int64(4), lr.Cols())
	assert.Equal(t, 1, lr.Blocks())
	assert.Equal(t, []Column{
		{Label: "n", Type: Int, Role: "key"},
		{Label: "x", Type: Flo},
		{Label: "s", Type: Bin},
		{Label: "b", Type: Bit},
	}, lr.Catalogue())

	br, err := lr.Block(0)
	require.NoError(t, err)
	assert.Equal(t, 4, br.Tracks())
	assert.Equal(t, int64(12), br.Rows())

	lo, hi, err := br.TrackRange(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lo)
	assert.Equal(t, int64(6), hi)

	lo, hi, err = br.TrackRange(3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(1), hi)

	tr, err := br.Track(0)
	require.NoError(t, err)
	assert.Equal(t, Int, tr.Type())
	assert.False(t, tr.Implicit())
	assert.Equal(t, 5, tr.DictLen())
	gotInts, err := tr.Ints()
	require.NoError(t, err)
	assert.Equal(t, ints, gotInts)
	codeLo, codeHi, err := tr.ChunkCodeRange(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), codeLo)
	assert.Equal(t, uint16(4), codeHi)

	tr, err = br.Track(1)
	require.NoError(t, err)
	gotFloats, err := tr.Floats()
	require.NoError(t, err)
	assert.Equal(t, floats, gotFloats)

	tr, err = br.Track(2)
	require.NoError(t, err)
	gotBins, err := tr.Bins()
	require.NoError(t, err)
	assert.Equal(t, bins, gotBins)
	assert.True(t, tr.meta.dictBinLarge.Get(0))

	tr, err = br.Track(3)
	require.NoError(t, err)
	gotBits, err := tr.Bits()
	require.NoError(t, err)
	assert.Equal(t, bits, gotBits)

	_, err = tr.Ints()
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
}

func TestFloatSpecialValues(t *testing.T) {
	floats := []float64{math.NaN(), negZero(), 0, math.Inf(-1), math.NaN()}
	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteFloats(floats))
		require.NoError(t, bw.Finish())
	})

	got, err := openLayer(t, p).ReadFloats(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, len(floats))
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.Signbit(got[1]))
	assert.False(t, math.Signbit(got[2]))
	assert.True(t, math.IsInf(got[3], -1))
	assert.True(t, math.IsNaN(got[4]))
}

func TestImplicitTracks(t *testing.T) {
	pos := make([]int64, 1000)
	neg := make([]int64, 1000)
	for i := range pos {
		pos[i] = 100 + int64(i)*3
		neg[i] = -7 + int64(i)/4
	}

	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts(pos))
		require.NoError(t, bw.WriteInts(neg))
		require.NoError(t, bw.Finish())
	})
	// Two implicit tracks take no space beyond their meta.
	assert.Less(t, len(p), 400)

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)
	for i, want := range [][]int64{pos, neg} {
		implicit, err := br.TrackImplicit(i)
		require.NoError(t, err)
		assert.True(t, implicit)

		lo, hi, err := br.TrackRange(i)
		require.NoError(t, err)
		assert.Equal(t, want[0], lo)
		assert.Equal(t, want[len(want)-1], hi)

		tr, err := br.Track(i)
		require.NoError(t, err)
		got, err := tr.Ints()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTwoByteAndRunCodedChunks(t *testing.T) {
	wide := make([]int64, 1000)
	runs := make([]int64, 600)
	for i := range wide {
		wide[i] = int64(i*7919%1000) - 500
	}
	for i := range runs {
		runs[i] = int64(i/100) * 2
	}

	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts(wide))
		require.NoError(t, bw.WriteInts(runs))
		require.NoError(t, bw.Finish())
	})

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)

	tr, err := br.Track(0)
	require.NoError(t, err)
	assert.Equal(t, 1000, tr.DictLen())
	assert.Equal(t, 4, tr.CodeChunks())
	assert.True(t, tr.meta.codeChunkTwoBytes.Get(0))
	assert.False(t, tr.meta.codeChunkRunCoded.Get(0))
	got, err := tr.Ints()
	require.NoError(t, err)
	assert.Equal(t, wide, got)

	tr, err = br.Track(1)
	require.NoError(t, err)
	assert.False(t, tr.Implicit())
	assert.Equal(t, 3, tr.CodeChunks())
	for c := 0; c < 3; c++ {
		assert.True(t, tr.meta.codeChunkRunCoded.Get(uint8(c)), "chunk %d", c)
		assert.False(t, tr.meta.codeChunkTwoBytes.Get(uint8(c)), "chunk %d", c)
	}
	got, err = tr.Ints()
	require.NoError(t, err)
	assert.Equal(t, runs, got)
}

func TestEmptyTracks(t *testing.T) {
	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts(nil))
		require.NoError(t, bw.WriteBins(nil))
		require.NoError(t, bw.WriteBits(nil))
		require.NoError(t, bw.Finish())
	})

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), br.Rows())

	tr, err := br.Track(0)
	require.NoError(t, err)
	ints, err := tr.Ints()
	require.NoError(t, err)
	assert.Empty(t, ints)

	tr, err = br.Track(1)
	require.NoError(t, err)
	bins, err := tr.Bins()
	require.NoError(t, err)
	assert.Empty(t, bins)

	tr, err = br.Track(2)
	require.NoError(t, err)
	bits, err := tr.Bits()
	require.NoError(t, err)
	assert.Empty(t, bits)
}

func TestReadColumnsAcrossBlocks(t *testing.T) {
	const blocks = 5
	var wantInts []int64
	var wantBins [][]byte
	p, _ := writeLayer(t, func(lw *LayerWriter) {
		for b := 0; b < blocks; b++ {
			ints := make([]int64, 700+b)
			bins := make([][]byte, len(ints))
			for i := range ints {
				ints[i] = int64((i * (b + 3)) % 97)
				bins[i] = []byte(strings.Repeat("x", i%13))
			}
			wantInts = append(wantInts, ints...)
			wantBins = append(wantBins, bins...)

			bw := lw.BeginBlock()
			require.NoError(t, bw.WriteInts(ints))
			require.NoError(t, bw.WriteBins(bins))
			require.NoError(t, bw.Finish())
		}
	})

	lr := openLayer(t, p)
	assert.Equal(t, blocks, lr.Blocks())
	assert.Equal(t, int64(len(wantInts)), lr.Rows())
	assert.Equal(t, int64(2), lr.Cols())
	assert.Nil(t, lr.Catalogue())

	gotInts, err := lr.ReadInts(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, wantInts, gotInts)

	gotBins, err := lr.ReadBins(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, wantBins, gotBins)

	_, err = lr.ReadFloats(context.Background(), 0)
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))

	_, err = lr.ReadBits(context.Background(), 2)
	assert.True(t, errors.Is(err, errors.ErrOutOfRange))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lr.ReadInts(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnnotatedHexdump(t *testing.T) {
	p, lw := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts([]int64{5, 5, 5, 6, 6, 6, 5, 6, 5, 3, 4, 2}))
		require.NoError(t, bw.WriteBins([][]byte{[]byte("a"), []byte("a long bin value")}))
		require.NoError(t, bw.Finish())
	}, WithAnnotations())

	dump := lw.Hexdump(p)
	assert.NotContains(t, dump, "ERROR")
	for _, name := range []string{
		"- layer.magic (8 bytes):",
		"- layer.block.0.track.0.dict_entry_chunks.len (2 bytes):",
		"- layer.block.0.track.0.dict_entry_chunks.0.words (5 bytes):",
		"- layer.block.0.track.0.dict_code_chunks.0.code_lanes.lo_lane (12 bytes):",
		"- layer.block.0.track.1.dict_entry_chunks.0.offset.words",
		"- layer.block.0.track.1.heap.data (16 bytes):",
		"- layer.block.0.track.0.meta.type (1 bytes):",
		"- layer.block.0.meta.track_implicit (32 bytes):",
		"- layer.meta.footer_len (8 bytes):",
	} {
		assert.Contains(t, dump, name)
	}
}

func TestWriterErrors(t *testing.T) {
	t.Run("TooManyRows", func(t *testing.T) {
		lw, err := NewLayerWriter(&bytes.Buffer{})
		require.NoError(t, err)
		bw := lw.BeginBlock()
		err = bw.WriteBits(make([]bool, MaxTrackRows+1))
		assert.True(t, errors.Is(err, errors.ErrTooManyRows))
	})

	t.Run("TooManyTracks", func(t *testing.T) {
		lw, err := NewLayerWriter(&bytes.Buffer{})
		require.NoError(t, err)
		bw := lw.BeginBlock()
		for i := 0; i < MaxTracks; i++ {
			require.NoError(t, bw.WriteBits([]bool{true}))
		}
		err = bw.WriteBits([]bool{true})
		assert.True(t, errors.Is(err, errors.ErrTooManyTracks))
	})

	t.Run("CatalogueTypeMismatch", func(t *testing.T) {
		lw, err := NewLayerWriter(&bytes.Buffer{})
		require.NoError(t, err)
		require.NoError(t, lw.SetCatalogue([]Column{{Label: "n", Type: Int}}))
		bw := lw.BeginBlock()
		err = bw.WriteFloats([]float64{1})
		assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
		require.NoError(t, bw.WriteInts([]int64{1}))
		err = bw.WriteInts([]int64{2})
		assert.True(t, errors.Is(err, errors.ErrOutOfRange))
	})

	t.Run("MissingCatalogueColumn", func(t *testing.T) {
		lw, err := NewLayerWriter(&bytes.Buffer{})
		require.NoError(t, err)
		require.NoError(t, lw.SetCatalogue([]Column{{Label: "a", Type: Int}, {Label: "b", Type: Int}}))
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts([]int64{1, 5}))
		err = bw.Finish()
		assert.True(t, errors.Is(err, errors.ErrOutOfRange))
		err = lw.Finish()
		assert.True(t, errors.Is(err, errors.ErrOutOfRange))
	})

	t.Run("DuplicateLabel", func(t *testing.T) {
		lw, err := NewLayerWriter(&bytes.Buffer{})
		require.NoError(t, err)
		err = lw.SetCatalogue([]Column{{Label: "n", Type: Int}, {Label: "n", Type: Bin}})
		assert.Error(t, err)
	})

	t.Run("Misuse", func(t *testing.T) {
		lw, err := NewLayerWriter(&bytes.Buffer{})
		require.NoError(t, err)
		bw := lw.BeginBlock()
		assert.PanicsWithValue(t, "block still open", func() { lw.BeginBlock() })
		require.NoError(t, bw.Finish())
		assert.PanicsWithValue(t, "block finished", func() { _ = bw.WriteInts(nil) })
		require.NoError(t, lw.Finish())
		assert.PanicsWithValue(t, "layer finished", func() { lw.BeginBlock() })
	})
}

func TestReaderErrors(t *testing.T) {
	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts([]int64{3, 1, 2}))
		require.NoError(t, bw.Finish())
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := bytes.Clone(p)
		bad[0] = 'S'
		_, err := OpenLayer(bytes.NewReader(bad), int64(len(bad)))
		assert.True(t, errors.Is(err, errors.ErrBadMagic))

		_, err = OpenLayer(bytes.NewReader(nil), 0)
		assert.True(t, errors.Is(err, errors.ErrBadMagic))
	})

	t.Run("FutureVersion", func(t *testing.T) {
		bad := bytes.Clone(p)
		footerLen := int64(binary.LittleEndian.Uint64(bad[len(bad)-8:]))
		metaStart := int64(len(bad)) - 8 - footerLen
		binary.LittleEndian.PutUint64(bad[metaStart:], 1)
		_, err := OpenLayer(bytes.NewReader(bad), int64(len(bad)))
		assert.True(t, errors.Is(err, errors.ErrUnsupportedVersion))
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := OpenLayer(bytes.NewReader(p[:len(p)-3]), int64(len(p)-3))
		assert.True(t, errors.Is(err, errors.ErrCorrupt))
	})

	t.Run("OutOfRange", func(t *testing.T) {
		lr := openLayer(t, p)
		_, err := lr.Block(1)
		assert.True(t, errors.Is(err, errors.ErrOutOfRange))
		br, err := lr.Block(0)
		require.NoError(t, err)
		_, err = br.Track(-1)
		assert.True(t, errors.Is(err, errors.ErrOutOfRange))
		tr, err := br.Track(0)
		require.NoError(t, err)
		_, _, err = tr.ChunkCodeRange(1)
		assert.True(t, errors.Is(err, errors.ErrOutOfRange))
	})
}

func TestBitTrackLayout(t *testing.T) {
	bits := make([]bool, 600)
	for i := range bits {
		bits[i] = i%3 == 0
	}
	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteBits(bits))
		require.NoError(t, bw.Finish())
	})

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)
	start := int64(len(Magic))
	end := br.meta.trackEndOffsets[0]

	// type, three bitmaps, then the length of all of that.
	const footerLen = 1 + 3*32
	assert.Equal(t, int64(footerLen+8), end-start)
	assert.Equal(t, byte(Bit), p[start])
	assert.Equal(t, uint64(footerLen), binary.LittleEndian.Uint64(p[end-8:end]))
	assert.Equal(t, byte(0x49), p[start+1], "rows 0, 3 and 6 set")

	tr, err := br.Track(0)
	require.NoError(t, err)
	got, err := tr.Bits()
	require.NoError(t, err)
	assert.Equal(t, bits, got)
}

func TestMaxSizeTracks(t *testing.T) {
	ints := make([]int64, MaxTrackRows)
	bins := make([][]byte, MaxTrackRows)
	for i := range ints {
		ints[i] = int64(i * 7919 % MaxTrackRows)
		bins[i] = []byte(fmt.Sprintf("bin-%012d", (i*7919)%MaxTrackRows))
	}

	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteInts(ints))
		require.NoError(t, bw.WriteBins(bins))
		require.NoError(t, bw.Finish())
	})

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxTrackRows), br.Rows())

	tr, err := br.Track(0)
	require.NoError(t, err)
	assert.Equal(t, MaxTrackRows, tr.DictLen())
	assert.Equal(t, 256, tr.CodeChunks())
	lo, hi, err := tr.ChunkCodeRange(255)
	require.NoError(t, err)
	assert.LessOrEqual(t, lo, hi)
	gotInts, err := tr.Ints()
	require.NoError(t, err)
	assert.Equal(t, ints, gotInts)

	tr, err = br.Track(1)
	require.NoError(t, err)
	assert.Equal(t, MaxTrackRows, tr.DictLen())
	assert.True(t, tr.meta.dictBinLarge.IsFull())
	gotBins, err := tr.Bins()
	require.NoError(t, err)
	assert.Equal(t, bins, gotBins)
}

func TestBinDictAcrossEntryChunks(t *testing.T) {
	// Sorted, the 300 long bins fill entry chunk 0 and part of chunk 1, and
	// chunk 2 holds only short bins.
	var bins [][]byte
	for i := 0; i < 300; i++ {
		bins = append(bins, []byte(fmt.Sprintf("long-bin-%06d", i)))
		bins = append(bins, []byte(fmt.Sprintf("s%05d", i)))
	}

	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteBins(bins))
		require.NoError(t, bw.Finish())
	})

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)
	tr, err := br.Track(0)
	require.NoError(t, err)
	assert.Equal(t, 600, tr.DictLen())
	assert.True(t, tr.meta.dictBinLarge.Get(0))
	assert.True(t, tr.meta.dictBinLarge.Get(1))
	assert.False(t, tr.meta.dictBinLarge.Get(2))
	got, err := tr.Bins()
	require.NoError(t, err)
	assert.Equal(t, bins, got)
}

func TestTrackRangeRawBits(t *testing.T) {
	p, _ := writeLayer(t, func(lw *LayerWriter) {
		bw := lw.BeginBlock()
		require.NoError(t, bw.WriteFloats([]float64{-2, -1, -3}))
		require.NoError(t, bw.WriteBins([][]byte{[]byte("\x01"), []byte("\xff")}))
		require.NoError(t, bw.Finish())
	})

	br, err := openLayer(t, p).Block(0)
	require.NoError(t, err)

	lo, hi, err := br.TrackRange(0)
	require.NoError(t, err)
	assert.Equal(t, int64(math.Float64bits(-3)), lo)
	assert.Equal(t, int64(math.Float64bits(-1)), hi)
	assert.Greater(t, lo, hi)

	lo, hi, err = br.TrackRange(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0x0100000000000000), lo)
	assert.Equal(t, int64(-0x0100000000000000), hi)
	assert.Greater(t, lo, hi)
}
