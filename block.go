package coldb

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/bitmap"
	"github.com/submergedb/coldb/internal/ioutil"
)

type blockMeta struct {
	trackLoVals     []int64
	trackHiVals     []int64
	trackImplicit   bitmap.Bitmap256
	trackRows       []uint16 // may vary across tracks of one block
	trackEndOffsets []int64
}

func (m *blockMeta) write(w *ioutil.Writer) error {
	n := len(m.trackLoVals)
	if n != len(m.trackHiVals) || n != len(m.trackRows) || n != len(m.trackEndOffsets) {
		return errors.New(errors.ErrCorrupt, "block meta track field length mismatch")
	}
	if n > MaxTracks {
		return errors.Newf(errors.ErrTooManyTracks, "track count %d > %d", n, MaxTracks)
	}
	w.PushContext("meta")
	defer w.PopContext()
	start := w.Pos()
	if err := ioutil.WriteNum(w, "track_num", int64(n)); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "track_lo_vals", m.trackLoVals); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "track_hi_vals", m.trackHiVals); err != nil {
		return err
	}
	if err := w.WriteBitmap("track_implicit", &m.trackImplicit); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "track_rows", m.trackRows); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "track_end_offsets", m.trackEndOffsets); err != nil {
		return err
	}
	return w.WriteFooterLen(start)
}

func readBlockMeta(r *ioutil.Reader, start, end int64) (*blockMeta, error) {
	metaStart, err := r.SeekFooterStart(end)
	if err != nil {
		return nil, err
	}
	n, err := ioutil.ReadNum[int64](r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.New(errors.ErrCorrupt, "negative track count")
	}
	if n > MaxTracks {
		return nil, errors.Newf(errors.ErrTooManyTracks, "track count %d > %d", n, MaxTracks)
	}
	m := &blockMeta{}
	if m.trackLoVals, err = ioutil.ReadNums[int64](r, int(n)); err != nil {
		return nil, err
	}
	if m.trackHiVals, err = ioutil.ReadNums[int64](r, int(n)); err != nil {
		return nil, err
	}
	if m.trackImplicit, err = r.ReadBitmap(); err != nil {
		return nil, err
	}
	if m.trackRows, err = ioutil.ReadNums[uint16](r, int(n)); err != nil {
		return nil, err
	}
	if m.trackEndOffsets, err = ioutil.ReadNums[int64](r, int(n)); err != nil {
		return nil, err
	}
	prev := start
	for i, off := range m.trackEndOffsets {
		if off < prev || off > metaStart {
			return nil, errors.Newf(errors.ErrCorrupt, "track %d end offset %d outside [%d, %d]", i, off, prev, metaStart)
		}
		prev = off
	}
	return m, nil
}

// rows is the row count of the longest track.
func (m *blockMeta) rows() int64 {
	var n int64
	for _, r := range m.trackRows {
		n = max(n, int64(r))
	}
	return n
}

// BlockWriter writes the tracks of one block, one column per track.
// Tracks are written in column order.
type BlockWriter struct {
	parent *LayerWriter
	w      *ioutil.Writer
	meta   blockMeta
	num    int
	start  int64
	closed bool
}

func newBlockWriter(parent *LayerWriter, num int) *BlockWriter {
	parent.w.PushContext("block")
	parent.w.PushContext(num)
	return &BlockWriter{
		parent: parent,
		w:      parent.w,
		num:    num,
		start:  parent.w.Pos(),
	}
}

// Tracks returns the number of tracks written so far.
func (bw *BlockWriter) Tracks() int { return len(bw.meta.trackEndOffsets) }

func (bw *BlockWriter) beginTrack(typ LogicalType, rows int) (*trackWriter, error) {
	if bw.closed {
		panic("block finished")
	}
	if bw.parent.err != nil {
		return nil, bw.parent.err
	}
	trackNum := bw.Tracks()
	if trackNum >= MaxTracks {
		return nil, errors.Newf(errors.ErrTooManyTracks, "block %d already has %d tracks", bw.num, trackNum)
	}
	if rows > MaxTrackRows {
		return nil, errors.Newf(errors.ErrTooManyRows, "track of %d rows is longer than %d", rows, MaxTrackRows)
	}
	if cat := bw.parent.catalogue; cat != nil {
		if trackNum >= len(cat) {
			return nil, errors.Newf(errors.ErrOutOfRange, "track %d has no catalogue column", trackNum)
		}
		if cat[trackNum].Type != typ {
			return nil, errors.Newf(errors.ErrTypeMismatch, "column %q is %s, not %s", cat[trackNum].Label, cat[trackNum].Type, typ)
		}
	}
	return newTrackWriter(bw, trackNum, typ), nil
}

// fail records err as the layer's sticky error, since a partly written track
// cannot be recovered.
func (bw *BlockWriter) fail(err error) error {
	if err != nil && bw.parent.err == nil {
		bw.parent.err = err
	}
	return err
}

// WriteInts writes the next track as Int values. Arithmetic sequences and
// stepped sequences are stored implicitly.
func (bw *BlockWriter) WriteInts(vals []int64) error {
	tw, err := bw.beginTrack(Int, len(vals))
	if err != nil {
		return err
	}
	if base, factor, ok := posVirtBaseAndFactor(vals); ok {
		err = tw.writeVirt(len(vals), base, factor, slices.Min(vals), slices.Max(vals))
	} else if base, factor, ok := negVirtBaseAndFactor(vals); ok {
		err = tw.writeVirt(len(vals), base, factor, vals[0], vals[len(vals)-1])
	} else {
		err = writeDictEncoded(tw, vals, identity[int64], cmp.Compare[int64], identity[int64], intComponents)
	}
	if err != nil {
		return bw.fail(err)
	}
	return bw.fail(tw.finish())
}

// WriteFloats writes the next track as Flo values.
func (bw *BlockWriter) WriteFloats(vals []float64) error {
	tw, err := bw.beginTrack(Flo, len(vals))
	if err != nil {
		return err
	}
	asInt := func(f float64) int64 { return int64(floKey(f)) }
	if err := writeDictEncoded(tw, vals, floKey, compareFlo, asInt, floComponents); err != nil {
		return bw.fail(err)
	}
	return bw.fail(tw.finish())
}

// WriteBins writes the next track as Bin values. vals are not retained.
func (bw *BlockWriter) WriteBins(vals [][]byte) error {
	tw, err := bw.beginTrack(Bin, len(vals))
	if err != nil {
		return err
	}
	if err := writeDictEncoded(tw, vals, binKey, bytes.Compare, binPrefix, binComponents); err != nil {
		return bw.fail(err)
	}
	return bw.fail(tw.finish())
}

// WriteBits writes the next track as Bit values.
func (bw *BlockWriter) WriteBits(vals []bool) error {
	tw, err := bw.beginTrack(Bit, len(vals))
	if err != nil {
		return err
	}
	if err := tw.writeBits(vals); err != nil {
		return bw.fail(err)
	}
	return bw.fail(tw.finish())
}

func (bw *BlockWriter) noteTrackFinished(info *trackInfoForBlock) error {
	bw.meta.trackLoVals = append(bw.meta.trackLoVals, info.loVal)
	bw.meta.trackHiVals = append(bw.meta.trackHiVals, info.hiVal)
	bw.meta.trackImplicit.Set(info.trackNum, info.implicit)
	bw.meta.trackRows = append(bw.meta.trackRows, info.rows)
	bw.meta.trackEndOffsets = append(bw.meta.trackEndOffsets, info.endPos)
	return nil
}

// Finish writes the block meta and returns control of the layer to its
// LayerWriter. With a catalogue set, every column must have been written.
func (bw *BlockWriter) Finish() error {
	if bw.closed {
		panic("block finished")
	}
	bw.closed = true
	defer func() { bw.parent.open = nil }()
	if bw.parent.err != nil {
		return bw.parent.err
	}
	if cat := bw.parent.catalogue; cat != nil && bw.Tracks() != len(cat) {
		return bw.fail(errors.Newf(errors.ErrOutOfRange, "block %d has %d tracks for %d catalogue columns", bw.num, bw.Tracks(), len(cat)))
	}
	if err := bw.meta.write(bw.w); err != nil {
		return bw.fail(err)
	}
	bw.w.PopContext()
	bw.w.PopContext()
	return bw.fail(bw.parent.noteBlockFinished(bw))
}

// BlockReader reads the tracks of one block.
type BlockReader struct {
	layer *LayerReader
	num   int
	start int64
	meta  *blockMeta
}

func (br *BlockReader) Num() int { return br.num }

func (br *BlockReader) Tracks() int { return len(br.meta.trackEndOffsets) }

// Rows returns the row count of the block's longest track.
func (br *BlockReader) Rows() int64 { return br.meta.rows() }

func (br *BlockReader) checkTrack(i int) error {
	if i < 0 || i >= br.Tracks() {
		return errors.Newf(errors.ErrOutOfRange, "track %d out of range [0, %d)", i, br.Tracks())
	}
	return nil
}

// TrackRange returns the smallest and largest value of track i as integers:
// ints as themselves, flos as their IEEE-754 bits, bins as their big-endian
// eight byte prefix, bits as 0 or 1. Only int and bit ranges compare as
// integers; negative flos and bins starting with a byte of 0x80 or more give
// lo > hi.
func (br *BlockReader) TrackRange(i int) (lo, hi int64, err error) {
	if err := br.checkTrack(i); err != nil {
		return 0, 0, err
	}
	return br.meta.trackLoVals[i], br.meta.trackHiVals[i], nil
}

func (br *BlockReader) TrackRows(i int) (int, error) {
	if err := br.checkTrack(i); err != nil {
		return 0, err
	}
	return int(br.meta.trackRows[i]), nil
}

// TrackImplicit reports whether track i is computed from its row number.
func (br *BlockReader) TrackImplicit(i int) (bool, error) {
	if err := br.checkTrack(i); err != nil {
		return false, err
	}
	return br.meta.trackImplicit.Get(uint8(i)), nil
}

// Track opens track i for decoding.
func (br *BlockReader) Track(i int) (*TrackReader, error) {
	if err := br.checkTrack(i); err != nil {
		return nil, err
	}
	start := br.start
	if i > 0 {
		start = br.meta.trackEndOffsets[i-1]
	}
	end := br.meta.trackEndOffsets[i]
	implicit := br.meta.trackImplicit.Get(uint8(i))
	r := br.layer.newReader()
	meta, metaStart, err := readTrackMeta(r, end, implicit)
	if err != nil {
		return nil, errors.Wrapf(err, "block %d track %d", br.num, i)
	}
	if meta.typ == Bit && metaStart != start {
		return nil, errors.Newf(errors.ErrCorrupt, "block %d bit track %d footer starts at %d, track at %d", br.num, i, metaStart, start)
	}
	return &TrackReader{
		block:     br,
		num:       i,
		start:     start,
		metaStart: metaStart,
		rows:      int(br.meta.trackRows[i]),
		implicit:  implicit,
		meta:      meta,
	}, nil
}
