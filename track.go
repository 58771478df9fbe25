package coldb

import (
	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/bitmap"
	"github.com/submergedb/coldb/internal/ioutil"
)

// trackMeta is the footer of a dict-encoded track. Implicit tracks write only
// the type, base and factor. A bit track is a single footer holding the type
// and then one bitmap per chunk.
type trackMeta struct {
	typ LogicalType

	// One bit per code chunk, set if the chunk holds any row.
	codeChunkPopulated bitmap.Bitmap256

	dictEntryCount     uint16
	dictValChunkTys    wordTy256 // int or flo value, or bin prefix
	dictBinLenChunkTys wordTy256
	dictBinLarge       bitmap.Bitmap256 // set if any bin in the entry chunk is longer than its prefix
	dictBinOffTys      wordTy256        // only present if dictBinLarge has any bit set

	codeChunkTwoBytes bitmap.Bitmap256 // set if any code in the chunk is over 0xff
	codeChunkRunCoded bitmap.Bitmap256

	codeChunkMins []uint16
	codeChunkMaxs []uint16

	// implicit tracks only
	virtBase, virtFactor int64

	// bit tracks only
	bitsStart int64
	bitChunks int
}

func (m *trackMeta) writeDict(w *ioutil.Writer) error {
	if len(m.codeChunkMins) != len(m.codeChunkMaxs) {
		return errors.New(errors.ErrCorrupt, "min/max dict code count mismatch")
	}
	if len(m.codeChunkMins) != m.codeChunkPopulated.Count() {
		return errors.New(errors.ErrCorrupt, "dict code populated-bitset count mismatch")
	}

	w.PushContext("meta")
	defer w.PopContext()
	start := w.Pos()
	if err := ioutil.WriteNum(w, "type", uint8(m.typ)); err != nil {
		return err
	}
	if err := w.WriteBitmap("code_chunk_populated", &m.codeChunkPopulated); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "dict_entry_count", m.dictEntryCount); err != nil {
		return err
	}
	if err := w.WriteDoubleBitmap("dict_val_chunk_tys", &m.dictValChunkTys.bitmaps); err != nil {
		return err
	}
	if err := w.WriteDoubleBitmap("dict_bin_len_chunk_tys", &m.dictBinLenChunkTys.bitmaps); err != nil {
		return err
	}
	if err := w.WriteBitmap("dict_bin_large", &m.dictBinLarge); err != nil {
		return err
	}
	if m.dictBinLarge.Any() {
		if err := w.WriteDoubleBitmap("dict_bin_off_tys", &m.dictBinOffTys.bitmaps); err != nil {
			return err
		}
	}
	if err := w.WriteBitmap("code_chunk_two_bytes", &m.codeChunkTwoBytes); err != nil {
		return err
	}
	if err := w.WriteBitmap("code_chunk_run_coded", &m.codeChunkRunCoded); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "chunk_min_dict_codes", m.codeChunkMins); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "chunk_max_dict_codes", m.codeChunkMaxs); err != nil {
		return err
	}
	return w.WriteFooterLen(start)
}

func (m *trackMeta) writeVirt(w *ioutil.Writer) error {
	w.PushContext("meta")
	defer w.PopContext()
	start := w.Pos()
	if err := ioutil.WriteNum(w, "type", uint8(m.typ)); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "base", m.virtBase); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "factor", m.virtFactor); err != nil {
		return err
	}
	return w.WriteFooterLen(start)
}

// readTrackMeta reads the footer of a track ending at end and returns it
// along with the position the footer starts at.
func readTrackMeta(r *ioutil.Reader, end int64, implicit bool) (*trackMeta, int64, error) {
	start, err := r.SeekFooterStart(end)
	if err != nil {
		return nil, 0, err
	}
	b, err := ioutil.ReadNum[uint8](r)
	if err != nil {
		return nil, 0, err
	}
	typ, err := logicalTypeFromByte(b)
	if err != nil {
		return nil, 0, err
	}
	m := &trackMeta{typ: typ}

	switch {
	case implicit:
		if typ != Int {
			return nil, 0, errors.Newf(errors.ErrCorrupt, "implicit track of type %s", typ)
		}
		if m.virtBase, err = ioutil.ReadNum[int64](r); err != nil {
			return nil, 0, err
		}
		if m.virtFactor, err = ioutil.ReadNum[int64](r); err != nil {
			return nil, 0, err
		}
	case typ == Bit:
		m.bitsStart = r.Pos()
		n := end - ioutil.FooterLenSize - m.bitsStart
		if n%bitmap.Size != 0 {
			return nil, 0, errors.Newf(errors.ErrCorrupt, "bit track of %d bitmap bytes", n)
		}
		m.bitChunks = int(n / bitmap.Size)
		if err := r.Seek(end - ioutil.FooterLenSize); err != nil {
			return nil, 0, err
		}
	default:
		if err := m.readDict(r); err != nil {
			return nil, 0, err
		}
	}
	if r.Pos() != end-ioutil.FooterLenSize {
		return nil, 0, errors.Newf(errors.ErrCorrupt, "track meta ends at %d, footer length at %d", r.Pos(), end-ioutil.FooterLenSize)
	}
	return m, start, nil
}

func (m *trackMeta) readDict(r *ioutil.Reader) (err error) {
	if m.codeChunkPopulated, err = r.ReadBitmap(); err != nil {
		return err
	}
	if m.dictEntryCount, err = ioutil.ReadNum[uint16](r); err != nil {
		return err
	}
	if m.dictValChunkTys.bitmaps, err = r.ReadDoubleBitmap(); err != nil {
		return err
	}
	if m.dictBinLenChunkTys.bitmaps, err = r.ReadDoubleBitmap(); err != nil {
		return err
	}
	if m.dictBinLarge, err = r.ReadBitmap(); err != nil {
		return err
	}
	if m.dictBinLarge.Any() {
		if m.dictBinOffTys.bitmaps, err = r.ReadDoubleBitmap(); err != nil {
			return err
		}
	}
	if m.codeChunkTwoBytes, err = r.ReadBitmap(); err != nil {
		return err
	}
	if m.codeChunkRunCoded, err = r.ReadBitmap(); err != nil {
		return err
	}
	n := m.codeChunkPopulated.Count()
	if m.codeChunkMins, err = ioutil.ReadNums[uint16](r, n); err != nil {
		return err
	}
	m.codeChunkMaxs, err = ioutil.ReadNums[uint16](r, n)
	return err
}

// trackInfoForBlock is not serialized; it carries what a finished track
// reports back to its block.
type trackInfoForBlock struct {
	trackNum uint8
	loVal    int64
	hiVal    int64
	implicit bool
	rows     uint16
	endPos   int64
}

type trackWriter struct {
	parent *BlockWriter
	w      *ioutil.Writer
	meta   trackMeta
	info   trackInfoForBlock
	heap   heap

	entryChunks int
}

func newTrackWriter(parent *BlockWriter, trackNum int, typ LogicalType) *trackWriter {
	parent.w.PushContext("track")
	parent.w.PushContext(trackNum)
	return &trackWriter{
		parent: parent,
		w:      parent.w,
		meta:   trackMeta{typ: typ},
		info:   trackInfoForBlock{trackNum: uint8(trackNum)},
	}
}

func (tw *trackWriter) noteDictEntryChunkFinished(meta *dictEntryChunkMeta) error {
	if tw.entryChunks > 255 {
		return errors.New(errors.ErrTooManyRows, "dict entry chunk num > 255")
	}
	chunkNum := uint8(tw.entryChunks)
	tw.entryChunks++
	if meta.valTy != nil {
		tw.meta.dictValChunkTys.set(chunkNum, *meta.valTy)
	}
	if meta.binLenTy != nil {
		tw.meta.dictBinLenChunkTys.set(chunkNum, *meta.binLenTy)
	}
	if meta.binOffTy != nil {
		tw.meta.dictBinOffTys.set(chunkNum, *meta.binOffTy)
	}
	tw.meta.dictBinLarge.Set(chunkNum, meta.anyBinLarge)
	return nil
}

func (tw *trackWriter) noteDictCodeChunkFinished(meta *dictCodeChunkMeta) error {
	chunkNum := len(tw.meta.codeChunkMaxs)
	if chunkNum > 255 {
		return errors.New(errors.ErrTooManyRows, "code chunk num > 255")
	}
	tw.meta.codeChunkPopulated.Set(uint8(chunkNum), true)
	tw.meta.codeChunkTwoBytes.Set(uint8(chunkNum), meta.twoBytes)
	tw.meta.codeChunkRunCoded.Set(uint8(chunkNum), meta.runCoded)
	tw.meta.codeChunkMins = append(tw.meta.codeChunkMins, meta.minDictCode)
	tw.meta.codeChunkMaxs = append(tw.meta.codeChunkMaxs, meta.maxDictCode)
	return nil
}

// writeDictEncoded writes vals as a sorted dictionary followed by one code
// per row, then the heap any long bins were spilled to.
func writeDictEncoded[T any, K comparable](
	tw *trackWriter,
	vals []T,
	key func(T) K,
	compare func(a, b T) int,
	asInt func(T) int64,
	components func([]T, *heap) [][]int64,
) error {
	dict, codes, err := dictEncode(vals, key, compare)
	if err != nil {
		return err
	}
	tw.info.rows = uint16(len(vals))
	tw.meta.dictEntryCount = uint16(len(dict))
	if len(dict) > 0 {
		tw.info.loVal = asInt(dict[0])
		tw.info.hiVal = asInt(dict[len(dict)-1])
	}

	tw.w.PushContext("dict_entry_chunks")
	if err := ioutil.WriteNum(tw.w, "len", uint16(len(dict))); err != nil {
		return err
	}
	for chunkNum, chunk := range chunks(dict) {
		if err := tw.writeDictEntryChunk(chunkNum, components(chunk, &tw.heap)); err != nil {
			return err
		}
	}
	tw.w.PopContext()

	tw.w.PushContext("dict_code_chunks")
	for chunkNum, chunk := range chunks(codes) {
		if err := tw.writeDictCodeChunk(chunkNum, chunk); err != nil {
			return err
		}
	}
	tw.w.PopContext()

	if len(tw.heap.data) > 0 {
		tw.w.PushContext("heap")
		if err := ioutil.WriteNum(tw.w, "len", int64(len(tw.heap.data))); err != nil {
			return err
		}
		if err := tw.w.WriteBytes("data", tw.heap.data); err != nil {
			return err
		}
		tw.w.PopContext()
	}
	return tw.meta.writeDict(tw.w)
}

func (tw *trackWriter) writeVirt(rows int, base, factor int64, lo, hi int64) error {
	tw.info.rows = uint16(rows)
	tw.info.implicit = true
	tw.info.loVal, tw.info.hiVal = lo, hi
	tw.meta.virtBase, tw.meta.virtFactor = base, factor
	return tw.meta.writeVirt(tw.w)
}

func (tw *trackWriter) writeBits(vals []bool) error {
	tw.info.rows = uint16(len(vals))
	start := tw.w.Pos()
	if err := ioutil.WriteNum(tw.w, "type", uint8(tw.meta.typ)); err != nil {
		return err
	}
	tw.w.PushContext("bit_chunks")
	var anySet, anyClear bool
	for chunkNum, chunk := range chunks(vals) {
		var bm bitmap.Bitmap256
		for i, v := range chunk {
			bm.Set(uint8(i), v)
			anySet = anySet || v
			anyClear = anyClear || !v
		}
		tw.w.PushContext(chunkNum)
		if err := tw.w.WriteBitmap("bits", &bm); err != nil {
			return err
		}
		tw.w.PopContext()
	}
	tw.w.PopContext()
	if anySet {
		tw.info.hiVal = 1
	}
	if anySet && !anyClear {
		tw.info.loVal = 1
	}
	return tw.w.WriteFooterLen(start)
}

func (tw *trackWriter) finish() error {
	tw.info.endPos = tw.w.Pos()
	tw.w.PopContext()
	tw.w.PopContext()
	return tw.parent.noteTrackFinished(&tw.info)
}

// chunks splits vals into ChunkRows-long pieces, the last possibly shorter.
func chunks[T any](vals []T) [][]T {
	out := make([][]T, 0, (len(vals)+ChunkRows-1)/ChunkRows)
	for len(vals) > 0 {
		n := min(len(vals), ChunkRows)
		out = append(out, vals[:n:n])
		vals = vals[n:]
	}
	return out
}
