package ioutil

import (
	"encoding/binary"
	"io"

	"golang.org/x/exp/constraints"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/bitmap"
)

// Reader is a cursor over an io.ReaderAt. Readers are cheap and independent,
// so concurrent decoders each take their own over a shared source.
type Reader struct {
	r    io.ReaderAt
	size int64
	pos  int64
	buf  []byte
}

// NewReader returns a Reader over the first size bytes of r, positioned at 0.
func NewReader(r io.ReaderAt, size int64) *Reader {
	return &Reader{r: r, size: size}
}

func (r *Reader) Pos() int64  { return r.pos }
func (r *Reader) Size() int64 { return r.size }

// Seek moves the cursor to an absolute position.
func (r *Reader) Seek(pos int64) error {
	if pos < 0 || pos > r.size {
		return errors.Newf(errors.ErrCorrupt, "seek to %d outside file of %d bytes", pos, r.size)
	}
	r.pos = pos
	return nil
}

// ReadBytes reads the next n bytes. The result is only valid until the next
// read.
func (r *Reader) ReadBytes(n int64) ([]byte, error) {
	if n < 0 || r.pos+n > r.size {
		return nil, errors.Newf(errors.ErrCorrupt, "read of %d bytes at %d overruns file of %d bytes", n, r.pos, r.size)
	}
	if int64(cap(r.buf)) < n {
		r.buf = make([]byte, n)
	}
	p := r.buf[:n]
	if m, err := r.r.ReadAt(p, r.pos); err != nil && !(err == io.EOF && int64(m) == n) {
		return nil, errors.Wrapf(err, "reading %d bytes at %d", n, r.pos)
	}
	r.pos += n
	return p, nil
}

// ReadNum reads one little-endian value of T's width.
func ReadNum[T constraints.Integer](r *Reader) (T, error) {
	size := sizeOf[T]()
	p, err := r.ReadBytes(int64(size))
	if err != nil {
		return 0, err
	}
	return decodeLE[T](p, size), nil
}

// ReadNums reads n little-endian values of T's width.
func ReadNums[T constraints.Integer](r *Reader, n int) ([]T, error) {
	size := sizeOf[T]()
	p, err := r.ReadBytes(int64(n * size))
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		out[i] = decodeLE[T](p[i*size:], size)
	}
	return out, nil
}

// ReadWords reads n width-byte little-endian words, zero extended.
func (r *Reader) ReadWords(n int, width int) ([]uint64, error) {
	p, err := r.ReadBytes(int64(n * width))
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	var word [8]byte
	for i := range out {
		copy(word[:], p[i*width:(i+1)*width])
		out[i] = binary.LittleEndian.Uint64(word[:])
		clear(word[:])
	}
	return out, nil
}

func (r *Reader) ReadBitmap() (bitmap.Bitmap256, error) {
	p, err := r.ReadBytes(bitmap.Size)
	if err != nil {
		return bitmap.Bitmap256{}, err
	}
	return bitmap.Decode(p), nil
}

func (r *Reader) ReadDoubleBitmap() (bitmap.DoubleBitmap256, error) {
	p, err := r.ReadBytes(bitmap.DoubleSize)
	if err != nil {
		return bitmap.DoubleBitmap256{}, err
	}
	return bitmap.DecodeDouble(p), nil
}

// SeekFooterStart reads the footer length stored in the 8 bytes before end
// and moves the cursor to the start of that footer. It returns the footer
// start, which is also the end of whatever precedes the footer.
func (r *Reader) SeekFooterStart(end int64) (int64, error) {
	if err := r.Seek(end - FooterLenSize); err != nil {
		return 0, err
	}
	n, err := ReadNum[int64](r)
	if err != nil {
		return 0, err
	}
	start := end - FooterLenSize - n
	if n < 0 || start < 0 {
		return 0, errors.Newf(errors.ErrCorrupt, "footer length %d ending at %d", n, end)
	}
	r.pos = start
	return start, nil
}

func decodeLE[T constraints.Integer](p []byte, size int) T {
	switch size {
	case 1:
		return T(p[0])
	case 2:
		return T(binary.LittleEndian.Uint16(p))
	case 4:
		return T(binary.LittleEndian.Uint32(p))
	default:
		return T(binary.LittleEndian.Uint64(p))
	}
}
