// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package q921

import "time"

// State is a Q.921 link state (spec.md §4.4).
type State int

const (
	StateTEIUnassigned State = iota
	StateAssignAwaitingTEI
	StateEstablishAwaitingTEI
	StateTEIAssigned
	StateAwaitingEstablishment
	StateAwaitingRelease
	StateMultiFrameEstablished
	StateTimerRecovery
)

func (s State) String() string {
	switch s {
	case StateTEIUnassigned:
		return "TEI_UNASSIGNED"
	case StateAssignAwaitingTEI:
		return "ASSIGN_AWAITING_TEI"
	case StateEstablishAwaitingTEI:
		return "ESTABLISH_AWAITING_TEI"
	case StateTEIAssigned:
		return "TEI_ASSIGNED"
	case StateAwaitingEstablishment:
		return "AWAITING_ESTABLISHMENT"
	case StateAwaitingRelease:
		return "AWAITING_RELEASE"
	case StateMultiFrameEstablished:
		return "MULTI_FRAME_ESTABLISHED"
	case StateTimerRecovery:
		return "TIMER_RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// MDLError is one of the lettered MDL-ERROR indications (spec.md §4.4,
// §7). Only the ones this implementation acts on directly are named;
// others are logged through the same path (Link.raiseMDLError).
type MDLError byte

const (
	MDLErrorA MDLError = 'A' // TEI assignment requested while TEI still unassigned (NT)
	MDLErrorB MDLError = 'B' // TEI check: no response
	MDLErrorC MDLError = 'C' // TEI check: duplicate response
	MDLErrorD MDLError = 'D' // unexpected UA in multiple-frame-established
	MDLErrorE MDLError = 'E' // unexpected DM
	MDLErrorF MDLError = 'F' // unsolicited DM received
	MDLErrorG MDLError = 'G' // T200 expired N200 times awaiting SABME response
	MDLErrorH MDLError = 'H' // T200 expired N200 times awaiting DISC response
	MDLErrorI MDLError = 'I' // T200 expired N200 times in TIMER_RECOVERY
	MDLErrorJ MDLError = 'J' // N(R) error / sequence error, re-establish
	MDLErrorK MDLError = 'K' // frame-reject (FRMR) received
)

// Role is the local role of a controller/link: which side owns TEI
// assignment and which way the C/R bit is interpreted (spec.md §6).
type Role int

const (
	RoleNetwork Role = iota
	RoleCPE
)

// Persistence is the layer-2 persistence policy of spec.md §9.
type Persistence int

const (
	PersistenceDefault Persistence = iota
	PersistenceKeepUp
	PersistenceLeaveDown
)

// Timers bundles the Q.921 timer durations and retry caps a Link is
// configured with (spec.md §6, §3). Zero-value fields fall back to the
// ITU-T defaults via WithDefaults.
type Timers struct {
	T200 time.Duration
	T201 time.Duration
	T202 time.Duration
	T203 time.Duration
	N200 int
	N202 int
	K    int // window width, PRI_TIMER_K; 7 for PRI, 1 for BRI point-to-point
}

// WithDefaults fills any zero field with the ITU-T Q.921 default for a
// PRI interface.
func (t Timers) WithDefaults() Timers {
	if t.T200 == 0 {
		t.T200 = 1000 * time.Millisecond
	}
	if t.T201 == 0 {
		t.T201 = 1000 * time.Millisecond
	}
	if t.T202 == 0 {
		t.T202 = 2000 * time.Millisecond
	}
	if t.T203 == 0 {
		t.T203 = 10000 * time.Millisecond
	}
	if t.N200 == 0 {
		t.N200 = 3
	}
	if t.N202 == 0 {
		t.N202 = 3
	}
	if t.K == 0 {
		t.K = 7
	}
	return t
}
