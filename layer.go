package coldb

import (
	"bytes"
	"io"

	"github.com/goccy/go-json"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/ioutil"
	"github.com/submergedb/coldb/logger"
)

const (
	// Magic opens every layer file.
	Magic = "submerge"
	// Version is the newest layer format this package reads and the one it
	// writes.
	Version = 0
)

type layerMeta struct {
	vers            int64
	rows            int64
	cols            int64
	blockEndOffsets []int64
	catalogue       []byte
}

func (m *layerMeta) write(w *ioutil.Writer) error {
	w.PushContext("meta")
	defer w.PopContext()
	start := w.Pos()
	if err := ioutil.WriteNum(w, "vers", int64(Version)); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "rows", m.rows); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "cols", m.cols); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "blocks", int64(len(m.blockEndOffsets))); err != nil {
		return err
	}
	if err := ioutil.WriteNums(w, "block_end_offsets", m.blockEndOffsets); err != nil {
		return err
	}
	if err := ioutil.WriteNum(w, "catalogue_len", int64(len(m.catalogue))); err != nil {
		return err
	}
	if err := w.WriteBytes("catalogue", m.catalogue); err != nil {
		return err
	}
	return w.WriteFooterLen(start)
}

func readLayerMeta(r *ioutil.Reader) (*layerMeta, error) {
	metaStart, err := r.SeekFooterStart(r.Size())
	if err != nil {
		return nil, err
	}
	if metaStart < int64(len(Magic)) {
		return nil, errors.Newf(errors.ErrCorrupt, "layer meta starts inside the magic header at %d", metaStart)
	}
	m := &layerMeta{}
	if m.vers, err = ioutil.ReadNum[int64](r); err != nil {
		return nil, err
	}
	if m.vers > Version {
		return nil, errors.Newf(errors.ErrUnsupportedVersion, "unsupported future version number %d", m.vers)
	}
	if m.rows, err = ioutil.ReadNum[int64](r); err != nil {
		return nil, err
	}
	if m.cols, err = ioutil.ReadNum[int64](r); err != nil {
		return nil, err
	}
	blocks, err := ioutil.ReadNum[int64](r)
	if err != nil {
		return nil, err
	}
	if blocks < 0 || blocks > metaStart/ioutil.FooterLenSize {
		return nil, errors.Newf(errors.ErrCorrupt, "bad block count %d", blocks)
	}
	if m.blockEndOffsets, err = ioutil.ReadNums[int64](r, int(blocks)); err != nil {
		return nil, err
	}
	prev := int64(len(Magic))
	for i, off := range m.blockEndOffsets {
		if off < prev || off > metaStart {
			return nil, errors.Newf(errors.ErrCorrupt, "block %d end offset %d outside [%d, %d]", i, off, prev, metaStart)
		}
		prev = off
	}
	n, err := ioutil.ReadNum[int64](r)
	if err != nil {
		return nil, err
	}
	catalogue, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	m.catalogue = bytes.Clone(catalogue)
	return m, nil
}

type options struct {
	annotate bool
	log      logger.Logger
}

// Option configures a LayerWriter or LayerReader.
type Option func(*options)

// WithAnnotations makes a LayerWriter record the byte range and name of
// everything it writes, for Hexdump.
func WithAnnotations() Option {
	return func(o *options) { o.annotate = true }
}

// WithLogger sets the logger for progress messages. The default discards them.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{log: logger.NopLogger}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LayerWriter writes a layer file as a sequence of blocks. Blocks are
// written one at a time: finish each BlockWriter before beginning the next.
type LayerWriter struct {
	w         *ioutil.Writer
	log       logger.Logger
	meta      layerMeta
	catalogue []Column
	open      *BlockWriter
	maxTracks int
	finished  bool

	// err is set by the first failed write; a layer cannot continue past it.
	err error
}

// NewLayerWriter writes the layer header to dst and prepares to write blocks.
func NewLayerWriter(dst io.Writer, opts ...Option) (*LayerWriter, error) {
	o := buildOptions(opts)
	lw := &LayerWriter{
		w:   ioutil.NewWriter(dst, o.annotate),
		log: o.log,
	}
	lw.w.PushContext("layer")
	if err := lw.w.WriteBytes("magic", []byte(Magic)); err != nil {
		return nil, errors.Wrap(err, "writing magic")
	}
	return lw, nil
}

// SetCatalogue describes the layer's columns. Once set, every track written
// is checked against the type of the column it belongs to.
func (lw *LayerWriter) SetCatalogue(cols []Column) error {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, ok := seen[c.Label]; ok {
			return errors.Newf(errors.ErrCorrupt, "duplicate column label %q", c.Label)
		}
		seen[c.Label] = struct{}{}
		if _, err := c.Type.MarshalText(); err != nil {
			return err
		}
	}
	if lw.maxTracks > len(cols) {
		return errors.Newf(errors.ErrOutOfRange, "catalogue of %d columns for blocks of %d tracks", len(cols), lw.maxTracks)
	}
	lw.catalogue = append([]Column(nil), cols...)
	return nil
}

// BeginBlock starts the next block.
func (lw *LayerWriter) BeginBlock() *BlockWriter {
	if lw.finished {
		panic("layer finished")
	}
	if lw.open != nil {
		panic("block still open")
	}
	lw.open = newBlockWriter(lw, len(lw.meta.blockEndOffsets))
	return lw.open
}

func (lw *LayerWriter) noteBlockFinished(bw *BlockWriter) error {
	end := lw.w.Pos()
	lw.meta.blockEndOffsets = append(lw.meta.blockEndOffsets, end)
	lw.meta.rows += bw.meta.rows()
	lw.maxTracks = max(lw.maxTracks, bw.Tracks())
	lw.open = nil
	lw.log.WithField("block", bw.num).Debugf("finished block: %d tracks, %d bytes", bw.Tracks(), end-bw.start)
	return nil
}

// Finish writes the layer meta. It does not close the underlying writer.
func (lw *LayerWriter) Finish() error {
	if lw.finished {
		panic("layer finished")
	}
	if lw.open != nil {
		panic("block still open")
	}
	lw.finished = true
	if lw.err != nil {
		return lw.err
	}

	lw.meta.cols = int64(lw.maxTracks)
	if lw.catalogue != nil {
		lw.meta.cols = int64(len(lw.catalogue))
		cat, err := json.Marshal(lw.catalogue)
		if err != nil {
			return errors.Wrap(err, "encoding catalogue")
		}
		lw.meta.catalogue = cat
	}
	if err := lw.meta.write(lw.w); err != nil {
		return err
	}
	lw.w.PopContext()
	lw.log.Infof("finished layer: %d blocks, %d rows, %d bytes", len(lw.meta.blockEndOffsets), lw.meta.rows, lw.w.Pos())
	return nil
}

// Size returns the number of bytes written so far.
func (lw *LayerWriter) Size() int64 { return lw.w.Pos() }

// Annotation names a byte range of a layer file.
type Annotation = ioutil.Annotation

// Annotations returns what was recorded when writing WithAnnotations.
func (lw *LayerWriter) Annotations() []Annotation { return lw.w.Annotations() }

// Hexdump renders buf, which must hold the bytes this writer wrote, split
// into its annotations.
func (lw *LayerWriter) Hexdump(buf []byte) string {
	return ioutil.RenderHexdump(lw.w.Annotations(), buf)
}

// LayerReader reads a layer file. It is safe for concurrent use as long as
// its source is.
type LayerReader struct {
	src       io.ReaderAt
	size      int64
	log       logger.Logger
	meta      *layerMeta
	catalogue []Column
}

// OpenLayer checks the header of the size-byte layer file in src and reads
// its meta.
func OpenLayer(src io.ReaderAt, size int64, opts ...Option) (*LayerReader, error) {
	o := buildOptions(opts)
	lr := &LayerReader{src: src, size: size, log: o.log}
	r := lr.newReader()
	magic, err := r.ReadBytes(int64(len(Magic)))
	if err != nil || string(magic) != Magic {
		return nil, errors.New(errors.ErrBadMagic, "bad magic number")
	}
	if lr.meta, err = readLayerMeta(r); err != nil {
		return nil, errors.Wrap(err, "reading layer meta")
	}
	if len(lr.meta.catalogue) > 0 {
		if err := json.Unmarshal(lr.meta.catalogue, &lr.catalogue); err != nil {
			return nil, errors.Wrap(err, "decoding catalogue")
		}
	}
	lr.log.Debugf("opened layer: version %d, %d blocks, %d rows", lr.meta.vers, len(lr.meta.blockEndOffsets), lr.meta.rows)
	return lr, nil
}

func (lr *LayerReader) newReader() *ioutil.Reader { return ioutil.NewReader(lr.src, lr.size) }

func (lr *LayerReader) Version() int64 { return lr.meta.vers }
func (lr *LayerReader) Rows() int64    { return lr.meta.rows }
func (lr *LayerReader) Cols() int64    { return lr.meta.cols }
func (lr *LayerReader) Blocks() int    { return len(lr.meta.blockEndOffsets) }

// Catalogue returns the layer's columns, or nil if none were recorded.
func (lr *LayerReader) Catalogue() []Column { return lr.catalogue }

// Block reads the meta of block i.
func (lr *LayerReader) Block(i int) (*BlockReader, error) {
	if i < 0 || i >= lr.Blocks() {
		return nil, errors.Newf(errors.ErrOutOfRange, "block %d out of range [0, %d)", i, lr.Blocks())
	}
	start := int64(len(Magic))
	if i > 0 {
		start = lr.meta.blockEndOffsets[i-1]
	}
	meta, err := readBlockMeta(lr.newReader(), start, lr.meta.blockEndOffsets[i])
	if err != nil {
		return nil, errors.Wrapf(err, "block %d", i)
	}
	return &BlockReader{layer: lr, num: i, start: start, meta: meta}, nil
}
