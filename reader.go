package coldb

import (
	"bytes"
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/ioutil"
)

// TrackReader decodes one track.
type TrackReader struct {
	block     *BlockReader
	num       int
	start     int64
	metaStart int64
	rows      int
	implicit  bool
	meta      *trackMeta
}

func (tr *TrackReader) Type() LogicalType { return tr.meta.typ }
func (tr *TrackReader) Rows() int         { return tr.rows }
func (tr *TrackReader) Implicit() bool    { return tr.implicit }

// DictLen returns the number of distinct values in a dict-encoded track.
func (tr *TrackReader) DictLen() int { return int(tr.meta.dictEntryCount) }

// CodeChunks returns the number of code chunks in a dict-encoded track.
func (tr *TrackReader) CodeChunks() int { return len(tr.meta.codeChunkMins) }

// ChunkCodeRange returns the smallest and largest dict code in code chunk i,
// which lets a scan skip chunks that cannot hold a wanted value.
func (tr *TrackReader) ChunkCodeRange(i int) (lo, hi uint16, err error) {
	if i < 0 || i >= tr.CodeChunks() {
		return 0, 0, errors.Newf(errors.ErrOutOfRange, "code chunk %d out of range [0, %d)", i, tr.CodeChunks())
	}
	return tr.meta.codeChunkMins[i], tr.meta.codeChunkMaxs[i], nil
}

func (tr *TrackReader) checkType(want LogicalType) error {
	if tr.meta.typ != want {
		return errors.Newf(errors.ErrTypeMismatch, "block %d track %d is %s, not %s", tr.block.num, tr.num, tr.meta.typ, want)
	}
	return nil
}

// Ints decodes an Int track.
func (tr *TrackReader) Ints() ([]int64, error) {
	if err := tr.checkType(Int); err != nil {
		return nil, err
	}
	if tr.implicit {
		out := make([]int64, tr.rows)
		for i := range out {
			out[i] = virtValue(tr.meta.virtBase, tr.meta.virtFactor, i)
		}
		return out, nil
	}
	return decodeDictTrack(tr, intsFromComponents)
}

// Floats decodes a Flo track.
func (tr *TrackReader) Floats() ([]float64, error) {
	if err := tr.checkType(Flo); err != nil {
		return nil, err
	}
	return decodeDictTrack(tr, flosFromComponents)
}

// Bins decodes a Bin track. Every returned slice is freshly allocated.
func (tr *TrackReader) Bins() ([][]byte, error) {
	if err := tr.checkType(Bin); err != nil {
		return nil, err
	}
	return decodeDictTrack(tr, binsFromComponents)
}

// Bits decodes a Bit track.
func (tr *TrackReader) Bits() ([]bool, error) {
	if err := tr.checkType(Bit); err != nil {
		return nil, err
	}
	if want := (tr.rows + ChunkRows - 1) / ChunkRows; tr.meta.bitChunks != want {
		return nil, tr.corrupt("%d rows need %d bit chunks, track has %d", tr.rows, want, tr.meta.bitChunks)
	}
	r := tr.block.layer.newReader()
	if err := r.Seek(tr.meta.bitsStart); err != nil {
		return nil, err
	}
	out := make([]bool, 0, tr.rows)
	for remaining := tr.rows; remaining > 0; remaining -= ChunkRows {
		bm, err := r.ReadBitmap()
		if err != nil {
			return nil, err
		}
		for i := 0; i < min(remaining, ChunkRows); i++ {
			out = append(out, bm.Get(uint8(i)))
		}
	}
	return out, nil
}

func (tr *TrackReader) corrupt(format string, args ...interface{}) error {
	return errors.Wrapf(errors.Newf(errors.ErrCorrupt, format, args...), "block %d track %d", tr.block.num, tr.num)
}

func decodeDictTrack[T any](tr *TrackReader, fromComponents func([][]int64, []byte) ([]T, error)) ([]T, error) {
	m := tr.meta
	r := tr.block.layer.newReader()
	if err := r.Seek(tr.start); err != nil {
		return nil, err
	}

	n, err := ioutil.ReadNum[uint16](r)
	if err != nil {
		return nil, err
	}
	if n != m.dictEntryCount {
		return nil, tr.corrupt("dict has %d entries, meta says %d", n, m.dictEntryCount)
	}
	entryChunks, err := readDictEntryChunks(r, m, int(n))
	if err != nil {
		return nil, err
	}

	codeChunks := (tr.rows + ChunkRows - 1) / ChunkRows
	if codeChunks != m.codeChunkPopulated.Count() {
		return nil, tr.corrupt("%d rows need %d code chunks, meta has %d", tr.rows, codeChunks, m.codeChunkPopulated.Count())
	}
	codes := make([]uint16, 0, tr.rows)
	for c := 0; c < codeChunks; c++ {
		chunkRows := min(ChunkRows, tr.rows-c*ChunkRows)
		chunk, err := readDictCodeChunk(r, m, uint8(c), chunkRows)
		if err != nil {
			return nil, errors.Wrapf(err, "block %d track %d code chunk %d", tr.block.num, tr.num, c)
		}
		codes = append(codes, chunk...)
	}

	var heapData []byte
	if r.Pos() < tr.metaStart {
		heapLen, err := ioutil.ReadNum[int64](r)
		if err != nil {
			return nil, err
		}
		data, err := r.ReadBytes(heapLen)
		if err != nil {
			return nil, err
		}
		heapData = bytes.Clone(data)
	}
	if r.Pos() != tr.metaStart {
		return nil, tr.corrupt("track body ends at %d, meta starts at %d", r.Pos(), tr.metaStart)
	}

	dict := make([]T, 0, n)
	for _, comps := range entryChunks {
		vals, err := fromComponents(comps, heapData)
		if err != nil {
			return nil, errors.Wrapf(err, "block %d track %d", tr.block.num, tr.num)
		}
		dict = append(dict, vals...)
	}
	out := make([]T, len(codes))
	for i, code := range codes {
		if int(code) >= len(dict) {
			return nil, tr.corrupt("row %d has dict code %d of %d", i, code, len(dict))
		}
		out[i] = dict[code]
	}
	return out, nil
}

// readDictEntryChunks returns the components of every entry chunk.
func readDictEntryChunks(r *ioutil.Reader, m *trackMeta, n int) ([][][]int64, error) {
	var out [][][]int64
	for c := 0; c*ChunkRows < n; c++ {
		chunkNum := uint8(c)
		count := min(ChunkRows, n-c*ChunkRows)
		ncomps := 1
		if m.typ == Bin {
			ncomps = shortBinComponents
			if m.dictBinLarge.Get(chunkNum) {
				ncomps = largeBinComponents
			}
		}
		comps := make([][]int64, ncomps)
		for comp := range comps {
			var ty wordTy
			switch comp {
			case componentValue:
				ty = m.dictValChunkTys.get(chunkNum)
			case componentBinLen:
				ty = m.dictBinLenChunkTys.get(chunkNum)
			case componentBinHash:
				ty = word2
			case componentBinOffset:
				ty = m.dictBinOffTys.get(chunkNum)
			}
			base, err := ioutil.ReadNum[int64](r)
			if err != nil {
				return nil, err
			}
			words, err := r.ReadWords(count, ty.len())
			if err != nil {
				return nil, err
			}
			vals := make([]int64, count)
			for i, w := range words {
				vals[i] = int64(uint64(base) + w)
			}
			comps[comp] = vals
		}
		out = append(out, comps)
	}
	return out, nil
}

func readDictCodeChunk(r *ioutil.Reader, m *trackMeta, chunkNum uint8, rows int) ([]uint16, error) {
	twoBytes := m.codeChunkTwoBytes.Get(chunkNum)
	if !m.codeChunkRunCoded.Get(chunkNum) {
		return readCodeLanes(r, rows, twoBytes)
	}
	runs, err := ioutil.ReadNum[uint16](r)
	if err != nil {
		return nil, err
	}
	runVals, err := readCodeLanes(r, int(runs), twoBytes)
	if err != nil {
		return nil, err
	}
	runEnds, err := ioutil.ReadNums[uint16](r, int(runs))
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, rows)
	for i, end := range runEnds {
		if int(end) < len(out) || int(end) >= rows {
			return nil, errors.Newf(errors.ErrCorrupt, "run %d ends at row %d of %d", i, end, rows)
		}
		for len(out) <= int(end) {
			out = append(out, runVals[i])
		}
	}
	if len(out) != rows {
		return nil, errors.Newf(errors.ErrCorrupt, "runs cover %d of %d rows", len(out), rows)
	}
	return out, nil
}

// ReadInts decodes column col of every block, concurrently, and returns the
// values in block order.
func (lr *LayerReader) ReadInts(ctx context.Context, col int) ([]int64, error) {
	return readColumn(ctx, lr, col, (*TrackReader).Ints)
}

// ReadFloats is ReadInts for Flo columns.
func (lr *LayerReader) ReadFloats(ctx context.Context, col int) ([]float64, error) {
	return readColumn(ctx, lr, col, (*TrackReader).Floats)
}

// ReadBins is ReadInts for Bin columns.
func (lr *LayerReader) ReadBins(ctx context.Context, col int) ([][]byte, error) {
	return readColumn(ctx, lr, col, (*TrackReader).Bins)
}

// ReadBits is ReadInts for Bit columns.
func (lr *LayerReader) ReadBits(ctx context.Context, col int) ([]bool, error) {
	return readColumn(ctx, lr, col, (*TrackReader).Bits)
}

func readColumn[T any](ctx context.Context, lr *LayerReader, col int, decode func(*TrackReader) ([]T, error)) ([]T, error) {
	parts := make([][]T, lr.Blocks())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for b := range parts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			br, err := lr.Block(b)
			if err != nil {
				return err
			}
			tr, err := br.Track(col)
			if err != nil {
				return err
			}
			parts[b], err = decode(tr)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]T, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	lr.log.Debugf("read column %d: %d rows from %d blocks", col, total, len(parts))
	return out, nil
}
