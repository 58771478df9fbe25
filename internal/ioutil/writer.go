// Package ioutil holds the positional, little-endian writer and reader that
// every level of a layer file is built on, along with the annotation
// machinery used to render annotated hexdumps of freshly written files.
package ioutil

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/submergedb/coldb/internal/bitmap"
)

// FooterLenSize is the size of the trailing length that closes every footer.
const FooterLenSize = 8

// Annotation names a byte range [Lo, Hi) of the output.
type Annotation struct {
	Lo, Hi int64
	Path   []string
}

// Name returns the dotted context path of the annotation.
func (a Annotation) Name() string { return strings.Join(a.Path, ".") }

// Writer wraps an io.Writer, tracking the absolute output position and,
// when annotating, the byte range of every value written.
type Writer struct {
	w   io.Writer
	pos int64
	buf []byte

	annotating  bool
	context     []string
	annotations []Annotation
}

// NewWriter returns a Writer positioned at 0.
func NewWriter(w io.Writer, annotate bool) *Writer {
	return &Writer{w: w, annotating: annotate}
}

// Pos returns the number of bytes written so far.
func (w *Writer) Pos() int64 { return w.pos }

// PushContext appends a component to the annotation path.
func (w *Writer) PushContext(c any) {
	if w.annotating {
		w.context = append(w.context, fmt.Sprint(c))
	}
}

// PopContext removes the last annotation path component.
func (w *Writer) PopContext() {
	if w.annotating && len(w.context) > 0 {
		w.context = w.context[:len(w.context)-1]
	}
}

// Annotations returns the ranges recorded so far, in write order.
func (w *Writer) Annotations() []Annotation { return w.annotations }

func (w *Writer) annotate(name string, lo int64) {
	if !w.annotating {
		return
	}
	path := make([]string, 0, len(w.context)+1)
	path = append(path, w.context...)
	path = append(path, name)
	w.annotations = append(w.annotations, Annotation{Lo: lo, Hi: w.pos, Path: path})
}

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return err
}

// WriteBytes writes p verbatim.
func (w *Writer) WriteBytes(name string, p []byte) error {
	lo := w.pos
	if err := w.write(p); err != nil {
		return err
	}
	w.annotate(name, lo)
	return nil
}

// WriteNum writes x as a little-endian value of its own width.
func WriteNum[T constraints.Integer](w *Writer, name string, x T) error {
	lo := w.pos
	w.buf = appendLE(w.buf[:0], x)
	if err := w.write(w.buf); err != nil {
		return err
	}
	w.annotate(name, lo)
	return nil
}

// WriteNums writes each element of xs as WriteNum would, under one annotation.
func WriteNums[T constraints.Integer](w *Writer, name string, xs []T) error {
	lo := w.pos
	w.buf = w.buf[:0]
	for _, x := range xs {
		w.buf = appendLE(w.buf, x)
	}
	if err := w.write(w.buf); err != nil {
		return err
	}
	w.annotate(name, lo)
	return nil
}

// WriteWords writes vals as width-byte little-endian words, truncating each
// value to its low width bytes.
func (w *Writer) WriteWords(name string, vals []uint64, width int) error {
	lo := w.pos
	w.buf = w.buf[:0]
	var word [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(word[:], v)
		w.buf = append(w.buf, word[:width]...)
	}
	if err := w.write(w.buf); err != nil {
		return err
	}
	w.annotate(name, lo)
	return nil
}

// WriteLane writes byte lane (0 is the most significant) of each big-endian
// encoded value in vals. It is used to split 16-bit codes into separable
// hi and lo byte columns.
func WriteLane[T constraints.Integer](w *Writer, name string, lane int, vals []T) error {
	lo := w.pos
	size := sizeOf[T]()
	shift := 8 * (size - 1 - lane)
	w.buf = w.buf[:0]
	for _, v := range vals {
		w.buf = append(w.buf, byte(uint64(v)>>shift))
	}
	if err := w.write(w.buf); err != nil {
		return err
	}
	w.annotate(name, lo)
	return nil
}

// WriteBitmap writes the 32-byte encoding of b.
func (w *Writer) WriteBitmap(name string, b *bitmap.Bitmap256) error {
	return w.WriteBytes(name, b.AppendTo(w.buf[:0]))
}

// WriteDoubleBitmap writes the 64-byte encoding of d.
func (w *Writer) WriteDoubleBitmap(name string, d *bitmap.DoubleBitmap256) error {
	return w.WriteBytes(name, d.AppendTo(w.buf[:0]))
}

// WriteFooterLen closes a footer that began at start by writing its length.
func (w *Writer) WriteFooterLen(start int64) error {
	return WriteNum(w, "footer_len", w.pos-start)
}

func sizeOf[T constraints.Integer]() int {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32:
		return 4
	default:
		return 8
	}
}

func appendLE[T constraints.Integer](p []byte, x T) []byte {
	switch sizeOf[T]() {
	case 1:
		return append(p, byte(x))
	case 2:
		return binary.LittleEndian.AppendUint16(p, uint16(x))
	case 4:
		return binary.LittleEndian.AppendUint32(p, uint32(x))
	default:
		return binary.LittleEndian.AppendUint64(p, uint64(x))
	}
}
