package node

import (
	"fmt"
	"strings"

	"github.com/submergedb/coldb/errors"
)

// Kind says what a message asks of its receiver.
type Kind uint8

const (
	Ping Kind = iota
	Put
	Ack
)

var kindNames = [...]string{"ping", "put", "ack"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, errors.Newf(errors.ErrProtocol, "unknown message kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(p []byte) error {
	name := strings.ToLower(string(p))
	for i, n := range kindNames {
		if n == name {
			*k = Kind(i)
			return nil
		}
	}
	return errors.Newf(errors.ErrProtocol, "unknown message kind %q", p)
}

// Msg is the unit of all inter-node communication. A request and its
// response share a Sequence; the response has Response set.
type Msg struct {
	Src      ID        `json:"src"`
	Dst      ID        `json:"dst"`
	TxnTime  RealmTime `json:"txn_time"` // identifies the transaction
	MsgTime  RealmTime `json:"msg_time"`
	Sequence int64     `json:"sequence"`
	Response bool      `json:"response"`
	Kind     Kind      `json:"kind"`

	// Put only.
	Expr  string   `json:"expr,omitempty"`
	Paths []string `json:"paths,omitempty"`
}
