package node

import (
	"io"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/svarint"
)

// MaxFrameLen bounds the payload of one frame.
const MaxFrameLen = 1 << 24

// FrameReader is what ReadFrame reads from; a *bufio.Reader is one.
type FrameReader interface {
	io.Reader
	io.ByteReader
}

// WriteFrame writes p to w as the peer id and the payload length, both as
// svarints, followed by the payload.
func WriteFrame(w io.Writer, p Packet) error {
	if len(p.Payload) > MaxFrameLen {
		return errors.Newf(errors.ErrProtocol, "frame of %d bytes exceeds %d", len(p.Payload), MaxFrameLen)
	}
	hdr := make([]byte, 0, 2*svarint.MaxLen)
	hdr = svarint.Append(hdr, uint64(p.Peer))
	hdr = svarint.Append(hdr, len(p.Payload))
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "writing frame header")
	}
	if _, err := w.Write(p.Payload); err != nil {
		return errors.Wrap(err, "writing frame payload")
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame. It returns io.EOF only
// when r ends cleanly between frames.
func ReadFrame(r FrameReader) (Packet, error) {
	peer, err := svarint.ReadFrom(r)
	if err != nil {
		if err == io.EOF {
			return Packet{}, err
		}
		return Packet{}, errors.Wrap(err, "reading frame peer")
	}
	n, err := svarint.ReadFrom(r)
	if err != nil {
		return Packet{}, errors.Wrap(noEOF(err), "reading frame length")
	}
	if n > MaxFrameLen {
		return Packet{}, errors.Newf(errors.ErrProtocol, "frame of %d bytes exceeds %d", n, MaxFrameLen)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, errors.Wrap(noEOF(err), "reading frame payload")
	}
	return Packet{Peer: ID(peer), Payload: payload}, nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Flush writes every outgoing packet to w as a frame, in order.
func (n *Node) Flush(w io.Writer) error {
	for {
		p, ok := n.SendBytes()
		if !ok {
			return nil
		}
		if err := WriteFrame(w, p); err != nil {
			return err
		}
	}
}

// Fill reads frames from r into the incoming queue until r is exhausted.
func (n *Node) Fill(r FrameReader) error {
	for {
		p, err := ReadFrame(r)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		n.RecvBytes(p.Peer, p.Payload)
	}
}
