// Package node queues the messages a process exchanges with the other nodes
// of its realm. A Node never touches the network itself: transports move the
// bytes it hands out with SendBytes and hand it what arrives with RecvBytes,
// and the process sends and consumes decoded messages on the other side.
package node

import (
	"sync"

	"github.com/goccy/go-json"

	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/logger"
)

// Packet is one encoded message and the peer it goes to or came from.
type Packet struct {
	Peer    ID
	Payload []byte
}

// RecvKind says what RecvMsg found.
type RecvKind uint8

const (
	NoMsgs RecvKind = iota
	Single
	Paired
)

func (k RecvKind) String() string {
	switch k {
	case NoMsgs:
		return "no-msgs"
	case Single:
		return "single"
	case Paired:
		return "paired"
	}
	return "unknown"
}

// Recv is the result of RecvMsg. Msg is set for Single; Req and Res are set
// for Paired.
type Recv struct {
	Kind RecvKind
	Msg  *Msg
	Req  *Msg
	Res  *Msg
}

type request struct {
	req *Msg
	res *Msg
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger for queue activity. The default discards it.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) { n.log = l }
}

// Node organizes the communication of one process with the other nodes.
// It is safe for concurrent use.
type Node struct {
	log logger.Logger

	// mu protects everything below.
	mu sync.Mutex

	// Decoded one-way messages awaiting RecvMsg.
	incoming []*Msg
	// Requests sent and either not yet answered or not yet consumed.
	requests map[int64]*request
	// Sequences of answered requests awaiting RecvMsg.
	complete []int64
	// Set when the last message RecvMsg returned was Single, so that a
	// waiting pair goes next.
	pairedNext bool

	outgoing []Packet
	inbox    []Packet
}

// New returns a Node with empty queues.
func New(opts ...Option) *Node {
	n := &Node{
		log:      logger.NopLogger,
		requests: make(map[int64]*request),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendMsg encodes msg and queues it for msg.Dst.
func (n *Node) SendMsg(msg *Msg) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outgoing = append(n.outgoing, Packet{Peer: msg.Dst, Payload: buf})
	return nil
}

// SendRequest sends msg and remembers it, so that the incoming message with
// the same Sequence is returned paired with it by RecvMsg.
func (n *Node) SendRequest(msg *Msg) error {
	if msg.Response {
		return errors.Newf(errors.ErrProtocol, "request %d is marked as a response", msg.Sequence)
	}
	n.mu.Lock()
	if _, ok := n.requests[msg.Sequence]; ok {
		n.mu.Unlock()
		return errors.Newf(errors.ErrProtocol, "request %d already pending", msg.Sequence)
	}
	n.requests[msg.Sequence] = &request{req: msg}
	n.mu.Unlock()

	if err := n.SendMsg(msg); err != nil {
		n.mu.Lock()
		delete(n.requests, msg.Sequence)
		n.mu.Unlock()
		return err
	}
	return nil
}

// SendBytes pops the next outgoing packet. ok is false when there is none.
func (n *Node) SendBytes() (p Packet, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.outgoing) == 0 {
		return Packet{}, false
	}
	p = n.outgoing[0]
	n.outgoing[0] = Packet{}
	n.outgoing = n.outgoing[1:]
	return p, true
}

// RecvBytes queues a packet that arrived from src. It is decoded by the next
// RecvMsg.
func (n *Node) RecvBytes(src ID, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inbox = append(n.inbox, Packet{Peer: src, Payload: payload})
}

// Pending returns the number of requests sent and not yet consumed.
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.requests)
}

// RecvMsg decodes every queued packet, then returns the next one-way message
// or answered request. When both are waiting it alternates between them. A
// packet that fails to decode is dropped and its error returned; the packets
// after it stay queued.
func (n *Node) RecvMsg() (Recv, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for len(n.inbox) > 0 {
		p := n.inbox[0]
		n.inbox[0] = Packet{}
		n.inbox = n.inbox[1:]
		if err := n.decode(p); err != nil {
			return Recv{}, err
		}
	}

	takePaired := len(n.complete) > 0 && (len(n.incoming) == 0 || n.pairedNext)
	switch {
	case takePaired:
		n.pairedNext = false
		seq := n.complete[0]
		n.complete = n.complete[1:]
		return n.pair(seq)
	case len(n.incoming) > 0:
		n.pairedNext = true
		msg := n.incoming[0]
		n.incoming[0] = nil
		n.incoming = n.incoming[1:]
		return Recv{Kind: Single, Msg: msg}, nil
	}
	return Recv{Kind: NoMsgs}, nil
}

func (n *Node) pair(seq int64) (Recv, error) {
	r, ok := n.requests[seq]
	if !ok {
		return Recv{}, errors.Newf(errors.ErrProtocol, "missing request %d", seq)
	}
	delete(n.requests, seq)
	switch {
	case r.req.Sequence != seq:
		return Recv{}, errors.Newf(errors.ErrProtocol, "request %d filed under sequence %d", r.req.Sequence, seq)
	case r.req.Response:
		return Recv{}, errors.Newf(errors.ErrProtocol, "request %d is a response", seq)
	case r.res == nil:
		return Recv{}, errors.Newf(errors.ErrProtocol, "missing response to request %d", seq)
	case r.res.Sequence != seq:
		return Recv{}, errors.Newf(errors.ErrProtocol, "response %d paired with request %d", r.res.Sequence, seq)
	case !r.res.Response:
		return Recv{}, errors.Newf(errors.ErrProtocol, "answer to request %d is not a response", seq)
	}
	return Recv{Kind: Paired, Req: r.req, Res: r.res}, nil
}

func (n *Node) decode(p Packet) error {
	msg := &Msg{}
	if err := json.Unmarshal(p.Payload, msg); err != nil {
		return errors.Wrapf(errors.Newf(errors.ErrProtocol, "undecodable message: %v", err), "from node %d", p.Peer)
	}
	if msg.Src != p.Peer {
		return errors.Newf(errors.ErrProtocol, "message from node %d claims source %d", p.Peer, msg.Src)
	}
	r, ok := n.requests[msg.Sequence]
	if !ok {
		n.incoming = append(n.incoming, msg)
		return nil
	}
	if r.res != nil {
		return errors.Newf(errors.ErrProtocol, "duplicate response to request %d from node %d", msg.Sequence, p.Peer)
	}
	r.res = msg
	n.complete = append(n.complete, msg.Sequence)
	n.log.WithField("peer", p.Peer).Debugf("request %d answered", msg.Sequence)
	return nil
}
