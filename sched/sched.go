// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package sched implements the dense-slot timer pool described for the
// Q.921/Q.931 scheduler: a grow-only array of callback slots per D-channel
// controller, addressed by a stable opaque ID that stays disjoint across
// controllers sharing an NFAS group.
package sched

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Cap is the hard per-controller limit on scheduled slots (Q921 link
// timers, TEI-management timers, restart timers all share this pool).
const Cap = 8192

const initialSlots = 128

// ID 0 is reserved: "not scheduled / disabled".
const noID = 0

// Callback is invoked when a scheduled slot's deadline has passed. data is
// the opaque value supplied to Schedule.
type Callback func(data interface{})

type slot struct {
	when     time.Time
	callback Callback
	data     interface{}
}

func (s *slot) free() bool { return s.callback == nil }

// poolIDs hands out process-wide, cap-sized blocks of ID space so two
// pools never collide even when chained together for NFAS.
var poolIDs uint64

func nextFirstID() uint64 {
	poolIDs += Cap
	if poolIDs < Cap {
		// Wrapped around a 64-bit counter. Not realistically reachable,
		// but mirrors the source's defensive reset on pool_id wraparound.
		poolIDs = Cap
	}
	return poolIDs
}

// Pool is the per-controller timer slot array.
type Pool struct {
	// Log receives diagnostic lines; nil disables them. Controller wires
	// its logrus entry in here so cap-exhaustion and cross-pool
	// cancellation surfaces through the same diagnostic path as everything
	// else (§7 Resource exhaustion).
	Log *logrus.Entry

	firstID uint64
	slots   []slot
	maxUsed int
}

// NewPool allocates a pool with its own disjoint ID range. The range is
// reserved lazily on first Schedule call, matching the source's behavior
// of only drawing a pool_id once the timer table is first grown.
func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) grow() bool {
	switch {
	case len(p.slots) == 0:
		p.slots = make([]slot, initialSlots)
		p.firstID = nextFirstID()
		return true
	case len(p.slots) >= Cap:
		return false
	default:
		n := len(p.slots) * 2
		if n > Cap {
			n = Cap
		}
		grown := make([]slot, n)
		copy(grown, p.slots)
		p.slots = grown
		return true
	}
}

// Schedule reserves the lowest free slot, sets its deadline to now+delay,
// and returns its opaque ID. Returns 0 if the cap is reached.
func (p *Pool) Schedule(now time.Time, delay time.Duration, cb Callback, data interface{}) uint64 {
	x := 0
	for ; x < p.maxUsed; x++ {
		if p.slots[x].free() {
			break
		}
	}
	if x == len(p.slots) {
		if !p.grow() {
			if p.Log != nil {
				p.Log.Warn("sched: no more room in scheduler")
			}
			return noID
		}
	}
	if p.maxUsed <= x {
		p.maxUsed = x + 1
	}
	p.slots[x] = slot{when: now.Add(delay), callback: cb, data: data}
	return p.firstID + uint64(x)
}

// NextDeadline scans the in-use slots and returns the earliest deadline,
// collapsing trailing empty slots into an updated maxUsed as it goes.
func (p *Pool) NextDeadline() (time.Time, bool) {
	var closest time.Time
	found := false
	for x := p.maxUsed; x > 0; x-- {
		i := x - 1
		if p.slots[i].free() {
			continue
		}
		if !found {
			found = true
			closest = p.slots[i].when
			p.maxUsed = i + 1
		} else if p.slots[i].when.Before(closest) {
			closest = p.slots[i].when
		}
	}
	if !found {
		p.maxUsed = 0
	}
	return closest, found
}

// RunReady runs every slot whose deadline is at or before now, in
// increasing slot order. If a callback schedules an event (reported via
// the eventPosted thunk) RunReady stops and returns true immediately;
// the caller must keep calling RunReady until it returns false.
func (p *Pool) RunReady(now time.Time, eventPosted func() bool) bool {
	for x := 0; x < p.maxUsed; x++ {
		s := &p.slots[x]
		if s.free() || s.when.After(now) {
			continue
		}
		cb := s.callback
		data := s.data
		s.callback = nil
		cb(data)
		if eventPosted != nil && eventPosted() {
			return true
		}
	}
	return false
}

// Cancel clears the slot identified by id if it belongs to this pool.
// Reports whether the id belonged to this pool (Cancel never "fails" in
// the sense of returning an error; a caller walking an NFAS chain uses
// this to know whether to keep walking).
func (p *Pool) Cancel(id uint64) bool {
	if id == noID {
		return true
	}
	if id < p.firstID || id >= p.firstID+Cap {
		return false
	}
	idx := int(id - p.firstID)
	if idx < len(p.slots) {
		p.slots[idx].callback = nil
	}
	return true
}

// Check returns true iff the slot named by id is currently occupied and
// holds data (the callback is not compared). Used to re-verify a deferred action's identity hasn't been
// superseded by other cleanup between the time it was scheduled and the
// time it fires.
func (p *Pool) Check(id uint64, data interface{}) bool {
	if id == noID {
		return false
	}
	if id < p.firstID || id >= p.firstID+Cap {
		return false
	}
	idx := int(id - p.firstID)
	if idx >= len(p.slots) {
		return false
	}
	s := &p.slots[idx]
	return !s.free() && s.data == data
}

// owns reports whether id falls within this pool's ID range.
func (p *Pool) owns(id uint64) bool {
	return p.firstID != 0 && id >= p.firstID && id < p.firstID+Cap
}

// Chain is a flat group of pools that share cross-cancellation
// responsibility, modeling an NFAS master/slave set per the design note
// in spec.md §9: a flat group owning many controllers rather than
// intrusive parent/slave pointers, so ID ownership resolves without
// walking a linked list controller-by-controller.
type Chain struct {
	members []*Pool
}

// Join adds p to the chain. A pool may belong to at most one chain.
func (c *Chain) Join(p *Pool) {
	c.members = append(c.members, p)
}

// CancelAcross cancels id on whichever member pool owns it, trying own
// first (the common case), then walking the rest of the chain. Logs a
// diagnostic (this is a bug, never a crash) if no member owns it.
func CancelAcross(chain *Chain, own *Pool, id uint64, log *logrus.Entry) {
	if id == noID {
		return
	}
	if own != nil && own.Cancel(id) {
		return
	}
	if chain != nil {
		for _, p := range chain.members {
			if p == own {
				continue
			}
			if p.owns(id) {
				p.Cancel(id)
				return
			}
		}
	}
	if log != nil {
		log.WithField("sched_id", id).Warn("sched: cancel requested for id owned by no pool in chain")
	} else {
		fmt.Printf("sched: cancel requested for id 0x%08x owned by no pool in chain\n", id)
	}
}
