// Package publish implements the Publish Server (spec.md §4.6): a
// connection table with heartbeat-credit eviction plus broadcast and
// request/reply delivery, parameterized for the pipeline's three
// pre-configured instances (MB1 UDP/PUBSUB, TRN TCP/REQRES,
// TRN-update UDP/PUBSUB).
package publish

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode is a peer's interaction mode, fixed at admission.
type Mode int

const (
	PubSub Mode = iota
	ReqRes
)

// State is a peer's position in the per-peer state machine
// (spec.md §4.6): NEW -> SUBSCRIBED -> {SUBSCRIBED, EVICTED}.
type State int

const (
	New State = iota
	Subscribed
	Evicted
)

// Peer is one connection-table entry.
type Peer struct {
	ID            uuid.UUID
	Addr          string
	Mode          Mode
	State         State
	Credits       int
	LastHeartbeat time.Time
}

// Table is the Publish Server's connection table: append on first
// traffic from a distinct peer address, pruned on heartbeat expiry.
// Safe for concurrent use — broadcast send-offs run on a worker pool
// while admission/heartbeat processing happens on the controller
// thread (spec.md §5).
type Table struct {
	mu        sync.RWMutex
	byAddr    map[string]*Peer
	Credits   int           // C: credits assigned on subscribe
	Timeout   time.Duration // H: eviction threshold
}

// NewTable constructs an empty connection table with the server's
// heartbeat policy (period is enforced by the caller's sweep cadence;
// Timeout and Credits are the per-peer policy values from spec.md
// §4.6).
func NewTable(credits int, timeout time.Duration) *Table {
	return &Table{byAddr: make(map[string]*Peer), Credits: credits, Timeout: timeout}
}

// Subscribe admits addr as a new peer (or resubscribes an existing
// one), assigning it a full credit allotment and Mode m.
func (t *Table) Subscribe(addr string, m Mode, now time.Time) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byAddr[addr]
	if !ok {
		p = &Peer{ID: uuid.New(), Addr: addr, Mode: m}
		t.byAddr[addr] = p
	}
	p.Mode = m
	p.State = Subscribed
	p.Credits = t.Credits
	p.LastHeartbeat = now
	return p
}

// Touch records traffic from addr without consuming a credit; it is
// the effect of any incoming message (spec.md §4.6 "each incoming
// message from a peer consumes the peer's action"). Returns false if
// addr is not in the table.
func (t *Table) Touch(addr string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byAddr[addr]
	if !ok {
		return false
	}
	p.LastHeartbeat = now
	return true
}

// Decrement consumes one heartbeat credit for addr — called once per
// completed request/reply exchange and once per successful broadcast
// send to the peer (spec.md §4.6). A peer reaching zero credits is
// evicted and removed.
func (t *Table) Decrement(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byAddr[addr]
	if !ok {
		return
	}
	p.Credits--
	if p.Credits <= 0 {
		p.State = Evicted
		delete(t.byAddr, addr)
	}
}

// Sweep evicts every peer whose last heartbeat exceeds Timeout as of
// now, returning the evicted addresses.
func (t *Table) Sweep(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	for addr, p := range t.byAddr {
		if now.Sub(p.LastHeartbeat) > t.Timeout {
			p.State = Evicted
			delete(t.byAddr, addr)
			evicted = append(evicted, addr)
		}
	}
	return evicted
}

// Live returns the addresses of every peer currently in the
// Subscribed state and matching mode m — the broadcast fan-out list
// for Publish.
func (t *Table) Live(m Mode) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.byAddr))
	for addr, p := range t.byAddr {
		if p.State == Subscribed && p.Mode == m {
			out = append(out, addr)
		}
	}
	return out
}

// Len returns the current peer count.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAddr)
}
