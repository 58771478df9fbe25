package node

import (
	"cmp"
	"fmt"
	"sync"
	"time"
)

// ID identifies a node within a realm, a single coherent distributed system.
type ID int64

// Time is a virtual time-point in signed microseconds since the epoch.
type Time int64

// Duration is a signed span of microseconds.
type Duration int64

// TimeOf converts t to microseconds since the epoch.
func TimeOf(t time.Time) Time { return Time(t.UnixMicro()) }

func (t Time) Add(d Duration) Time { return t + Time(d) }

func (t Time) Sub(u Time) Duration { return Duration(t - u) }

func (t Time) String() string { return time.UnixMicro(int64(t)).UTC().Format(time.RFC3339Nano) }

// RealmTime labels an event anywhere in a realm without coordination: the
// node's own clock, then the node, then a count of events sharing that
// microsecond. RealmTimes are totally ordered by those fields in that order.
type RealmTime struct {
	Time  Time  `json:"time"`
	Node  ID    `json:"node"`
	Event int64 `json:"event"`
}

// Compare returns -1, 0 or 1 as a is before, equal to or after b.
func (a RealmTime) Compare(b RealmTime) int {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Node, b.Node); c != 0 {
		return c
	}
	return cmp.Compare(a.Event, b.Event)
}

func (a RealmTime) Before(b RealmTime) bool { return a.Compare(b) < 0 }

func (a RealmTime) String() string {
	return fmt.Sprintf("%d@%d#%d", a.Time, a.Node, a.Event)
}

// Clock issues strictly increasing RealmTimes for one node, even when the
// wall clock stalls or steps backwards.
type Clock struct {
	node ID
	now  func() time.Time

	mu      sync.Mutex
	last    RealmTime
	started bool
}

// NewClock returns a Clock for node. now defaults to time.Now.
func NewClock(node ID, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{node: node, now: now}
}

// Next returns a RealmTime after every one this Clock has returned before.
func (c *Clock) Next() RealmTime {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := TimeOf(c.now())
	if !c.started || t > c.last.Time {
		c.last = RealmTime{Time: t, Node: c.node}
		c.started = true
	} else {
		c.last.Event++
	}
	return c.last
}
