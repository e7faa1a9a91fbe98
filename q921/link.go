// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package q921

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hhorai/libpri/q931bridge"
	"github.com/hhorai/libpri/sched"
)

// Hooks are the boundaries a Link crosses: transmitting a framed octet
// string, delivering an accepted I-frame payload up to Q.931, and posting
// a DL event toward the controller's single-slot event pump (spec.md §5,
// §6). All three may be nil in tests that only inspect Link state.
type Hooks struct {
	Transmit  func(frame []byte)
	Deliver   func(payload []byte)
	PostEvent func(q931bridge.Event)
	Log       *logrus.Entry
}

type txEntry struct {
	sent       bool
	pushedBack bool
	ns         uint8
	payload    []byte
}

// resendable reports whether the entry is due for (re)transmission: never
// sent, or pushed back by a REJ rewind (spec.md §4.4 "Windowed I-frame
// send").
func (t *txEntry) resendable() bool { return !t.sent || t.pushedBack }

// Link is one Q.921 (SAPI, TEI) data link (spec.md §3 "Link").
type Link struct {
	Network     bool // local role: network side if true
	PTP         bool // point-to-point D-channel (no TEI management on this link)
	SAPI        uint8
	TEI         int16 // negative while awaiting reclamation (spec.md §3)
	Timers      Timers
	Persistence Persistence

	Hooks Hooks
	pool  *sched.Pool

	state State
	now   time.Time // wall time as of the most recent Tick; scheduler callbacks read this

	vs, va, vr uint8
	rc         int

	peerRxBusy       bool
	ownRxBusy        bool
	ackPending       bool
	rejectException  bool
	l3Initiated      bool
	pendingMDLError  *MDLError

	txq []*txEntry

	t200, t203, restart uint64
}

// New constructs a Link bound to pool for its timers.
func New(pool *sched.Pool, sapi uint8, tei int16, network, ptp bool, timers Timers, persistence Persistence, hooks Hooks) *Link {
	return &Link{
		pool:        pool,
		SAPI:        sapi,
		TEI:         tei,
		Network:     network,
		PTP:         ptp,
		Timers:      timers.WithDefaults(),
		Persistence: persistence,
		Hooks:       hooks,
		state:       StateTEIAssigned,
	}
}

func (l *Link) State() State { return l.state }
func (l *Link) VS() uint8    { return l.vs }
func (l *Link) VA() uint8    { return l.va }
func (l *Link) VR() uint8    { return l.vr }

// Tick records the current wall time; callers invoke it before any
// ingress, timer, or upper-layer operation so scheduler callbacks (which
// carry no time argument of their own) can read l.now (spec.md §5
// "single-threaded cooperative" turn model).
func (l *Link) Tick(now time.Time) { l.now = now }

func (l *Link) logf() *logrus.Entry {
	if l.Hooks.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return l.Hooks.Log.WithFields(logrus.Fields{"sapi": l.SAPI, "tei": l.TEI, "state": l.state.String()})
}

func (l *Link) post(ev q931bridge.Event) {
	if l.Hooks.PostEvent != nil {
		l.Hooks.PostEvent(ev)
	}
}

func (l *Link) txTEI() uint8 {
	if l.TEI < 0 {
		return uint8(-l.TEI)
	}
	return uint8(l.TEI)
}

// commandCR/responseCR implement spec.md §6's C/R convention: a
// network-originated command has C/R=1, a CPE-originated command has
// C/R=0; responses invert the sender's command value.
func (l *Link) commandCR() bool  { return l.Network }
func (l *Link) responseCR() bool { return !l.Network }

func (l *Link) sendFrame(hdr Header) {
	l.sendFrameWithPayload(hdr, nil)
}

func (l *Link) sendFrameWithPayload(hdr Header, payload []byte) {
	if l.Hooks.Transmit == nil {
		return
	}
	l.Hooks.Transmit(EncodeHeader(hdr, payload))
}

func (l *Link) cmdU(ft FrameType, pf bool) Header {
	return Header{SAPI: l.SAPI, TEI: l.txTEI(), CR: l.commandCR(), Type: ft, PF: pf}
}

func (l *Link) respU(ft FrameType, pf bool) Header {
	return Header{SAPI: l.SAPI, TEI: l.txTEI(), CR: l.responseCR(), Type: ft, PF: pf}
}

func (l *Link) cmdS(ft FrameType, pf bool) Header {
	return Header{SAPI: l.SAPI, TEI: l.txTEI(), CR: l.commandCR(), Type: ft, NR: l.vr, PF: pf}
}

func (l *Link) respS(ft FrameType, pf bool) Header {
	return Header{SAPI: l.SAPI, TEI: l.txTEI(), CR: l.responseCR(), Type: ft, NR: l.vr, PF: pf}
}

// ---------------------------------------------------------- establishment

func (l *Link) beginEstablishment() {
	l.state = StateAwaitingEstablishment
	l.l3Initiated = true
	l.rejectException = false
	l.ownRxBusy = false
	l.rc = 0
	l.stopT203()
	l.startT200()
	l.sendFrame(l.cmdU(FrameSABME, true))
}

// Establish requests layer-2 establishment explicitly (used by TEI
// management once a TEI is bound, mirroring the teacher's PowerON-style
// explicit kick rather than waiting for the first queued I-frame).
func (l *Link) Establish() {
	if l.state == StateTEIAssigned {
		l.beginEstablishment()
	}
}

// SendUp queues payload as an I-frame. Queuing always succeeds
// regardless of current state (spec.md §4.4 "Windowed I-frame send");
// establishment is triggered if necessary.
func (l *Link) SendUp(payload []byte) {
	l.txq = append(l.txq, &txEntry{payload: payload})
	if l.state == StateTEIAssigned {
		l.beginEstablishment()
	}
	l.drainQueue()
}

// SetReceiverBusy lets the upper layer throttle the peer: entering the
// busy condition answers subsequent polls with RNR instead of RR, and
// leaving it advertises readiness again with a bare RR.
func (l *Link) SetReceiverBusy(busy bool) {
	if l.ownRxBusy == busy {
		return
	}
	l.ownRxBusy = busy
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	if busy {
		l.sendFrame(l.respS(FrameRNR, false))
	} else {
		l.sendFrame(l.respS(FrameRR, false))
	}
}

// ownStatusFrame picks RR or RNR according to the local receiver
// condition.
func (l *Link) ownStatusFrame() FrameType {
	if l.ownRxBusy {
		return FrameRNR
	}
	return FrameRR
}

// Release requests teardown of an established link.
func (l *Link) Release() {
	switch l.state {
	case StateMultiFrameEstablished, StateTimerRecovery:
		l.stopT200()
		l.stopT203()
		l.txq = nil
		l.rc = 0
		l.state = StateAwaitingRelease
		l.startT200()
		l.sendFrame(l.cmdU(FrameDISC, true))
	}
}

// ------------------------------------------------------------- ingress

// Receive dispatches a decoded frame arriving on this link.
func (l *Link) Receive(hdr Header, payload []byte) {
	switch hdr.Type {
	case FrameSABME:
		l.handleSABME(hdr)
	case FrameUA:
		l.handleUA(hdr)
	case FrameDM:
		l.handleDM(hdr)
	case FrameDISC:
		l.handleDISC(hdr)
	case FrameI:
		l.handleI(hdr, payload)
	case FrameRR:
		l.handleRR(hdr)
	case FrameRNR:
		l.handleRNR(hdr)
	case FrameREJ:
		l.handleREJ(hdr)
	case FrameFRMR:
		l.handleFRMR(hdr)
	}
}

func (l *Link) handleSABME(hdr Header) {
	switch l.state {
	case StateAwaitingEstablishment:
		// Establishment collision: acknowledge and keep waiting for the
		// peer's UA.
		l.sendFrame(l.respU(FrameUA, hdr.PF))
	case StateAwaitingRelease:
		l.sendFrame(l.respU(FrameDM, hdr.PF))
	case StateTEIAssigned, StateMultiFrameEstablished, StateTimerRecovery:
		wasEstablished := l.state == StateMultiFrameEstablished || l.state == StateTimerRecovery
		l.stopT200()
		l.stopT203()
		l.vs, l.va, l.vr = 0, 0, 0
		l.rejectException = false
		l.ownRxBusy = false
		l.peerRxBusy = false
		l.txq = nil
		l.state = StateMultiFrameEstablished
		l.sendFrame(l.respU(FrameUA, hdr.PF))
		l.startT203()
		if !wasEstablished {
			l.l3Initiated = false
			l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: q931bridge.DLEstablishIndication})
		}
	}
}

func (l *Link) handleUA(hdr Header) {
	if !hdr.PF {
		return
	}
	switch l.state {
	case StateAwaitingEstablishment:
		l.stopT200()
		l.vs, l.va, l.vr = 0, 0, 0
		l.state = StateMultiFrameEstablished
		l.startT203()
		kind := q931bridge.DLEstablishConfirm
		if !l.l3Initiated {
			kind = q931bridge.DLEstablishIndication
		}
		l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: kind})
	case StateAwaitingRelease:
		l.stopT200()
		l.state = StateTEIAssigned
		l.txq = nil
		l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: q931bridge.DLReleaseConfirm})
		if l.Persistence == PersistenceKeepUp {
			l.startRestart()
		}
	default:
		l.raiseMDLError(MDLErrorD)
	}
}

func (l *Link) handleDM(hdr Header) {
	if !hdr.PF {
		return
	}
	switch l.state {
	case StateAwaitingEstablishment:
		l.stopT200()
		l.state = StateTEIAssigned
		l.txq = nil
		l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: q931bridge.DLReleaseIndication})
	case StateMultiFrameEstablished, StateTimerRecovery:
		l.raiseMDLError(MDLErrorE)
	case StateTEIAssigned:
		l.raiseMDLError(MDLErrorF)
	}
}

func (l *Link) handleDISC(hdr Header) {
	switch l.state {
	case StateMultiFrameEstablished, StateTimerRecovery, StateAwaitingEstablishment, StateAwaitingRelease:
		l.stopT200()
		l.stopT203()
		l.txq = nil
		l.state = StateTEIAssigned
		l.sendFrame(l.respU(FrameUA, hdr.PF))
		l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: q931bridge.DLReleaseIndication})
		if l.Persistence == PersistenceKeepUp {
			l.startRestart()
		}
	default:
		l.sendFrame(l.respU(FrameDM, hdr.PF))
	}
}

func (l *Link) handleFRMR(hdr Header) {
	l.raiseMDLError(MDLErrorK)
	l.beginEstablishment()
}

// isCommand interprets the wire C/R bit against the peer's role
// (spec.md §6: network-originated commands have C/R=1, CPE-originated
// commands C/R=0, responses invert).
func (l *Link) isCommand(hdr Header) bool { return hdr.CR == !l.Network }

// ackTimers runs the T200/T203 handover after V(A) has advanced in
// MULTI_FRAME_ESTABLISHED: all outstanding frames acknowledged stops
// T200 and restarts T203, a partial acknowledgment restarts T200
// (spec.md §8 property 2, scenario S2).
func (l *Link) ackTimers() {
	if l.state != StateMultiFrameEstablished {
		return
	}
	if l.va == l.vs {
		l.stopT200()
		l.startT203()
	} else {
		l.stopT200()
		l.startT200()
	}
}

// recoverFromEnquiry handles a supervisory response with F=1 while in
// TIMER_RECOVERY: rewind the send window to the acknowledged point,
// resume MULTI_FRAME_ESTABLISHED, and let the send engine retransmit
// whatever remained outstanding.
func (l *Link) recoverFromEnquiry() {
	for _, e := range l.txq {
		if e.sent {
			e.pushedBack = true
		}
	}
	l.vs = l.va
	l.stopT200()
	l.state = StateMultiFrameEstablished
	l.startT203()
}

func (l *Link) handleI(hdr Header, payload []byte) {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	if !l.ack(hdr.NR) {
		return
	}
	l.ackTimers()
	if hdr.NS == l.vr {
		l.vr = (l.vr + 1) % 128
		l.rejectException = false
		if l.Hooks.Deliver != nil {
			l.Hooks.Deliver(payload)
		}
		if hdr.PF {
			l.sendFrame(l.respS(l.ownStatusFrame(), true))
			l.ackPending = false
		} else {
			l.ackPending = true
		}
	} else if !l.rejectException {
		l.rejectException = true
		l.sendFrame(l.respS(FrameREJ, hdr.PF))
	} else if hdr.PF {
		l.sendFrame(l.respS(l.ownStatusFrame(), true))
	}
	l.drainQueue()
	if l.ackPending {
		// Nothing carried the acknowledgment piggyback; send it bare.
		l.sendFrame(l.respS(FrameRR, false))
		l.ackPending = false
	}
}

func (l *Link) handleRR(hdr Header) {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	l.peerRxBusy = false
	if !l.ack(hdr.NR) {
		return
	}
	if l.state == StateTimerRecovery {
		if !l.isCommand(hdr) && hdr.PF {
			l.recoverFromEnquiry()
		} else if l.isCommand(hdr) && hdr.PF {
			l.sendFrame(l.respS(l.ownStatusFrame(), true))
		}
	} else {
		l.ackTimers()
		if l.isCommand(hdr) && hdr.PF {
			l.sendFrame(l.respS(l.ownStatusFrame(), true))
		}
	}
	l.drainQueue()
}

func (l *Link) handleRNR(hdr Header) {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	l.peerRxBusy = true
	if !l.ack(hdr.NR) {
		return
	}
	if l.state == StateTimerRecovery {
		if !l.isCommand(hdr) && hdr.PF {
			l.recoverFromEnquiry()
		}
	} else if l.isCommand(hdr) && hdr.PF {
		l.sendFrame(l.respS(l.ownStatusFrame(), true))
	}
}

func (l *Link) handleREJ(hdr Header) {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	l.peerRxBusy = false
	if !l.ack(hdr.NR) {
		return
	}
	if l.state == StateTimerRecovery && !l.isCommand(hdr) && hdr.PF {
		l.recoverFromEnquiry()
	} else {
		for _, e := range l.txq {
			if e.sent {
				e.pushedBack = true
			}
		}
		l.vs = l.va
		l.ackTimers()
		if l.isCommand(hdr) && hdr.PF {
			l.sendFrame(l.respS(l.ownStatusFrame(), true))
		}
	}
	l.drainQueue()
}

// ack validates N(R) against the window and drops acknowledged queue
// entries, advancing V(A) (spec.md §4.4 "Acknowledgement"). On an invalid
// N(R) it raises MDL-ERROR 'J' and re-establishes, returning false.
func (l *Link) ack(nr uint8) bool {
	if !inWindowInclusive(l.va, l.vs, nr) {
		l.raiseMDLError(MDLErrorJ)
		l.beginEstablishment()
		return false
	}
	kept := l.txq[:0]
	for _, e := range l.txq {
		if e.sent && !e.pushedBack && inRangeExclusiveUpper(l.va, nr, e.ns) {
			continue // acknowledged, drop
		}
		kept = append(kept, e)
	}
	l.txq = kept
	l.va = nr
	return true
}

// ---------------------------------------------------------------- send

func modDiff(a, b uint8) uint8 { return uint8((int(a) - int(b) + 128) % 128) }

// inWindowInclusive reports whether nr lies in [va, vs] modulo 128.
func inWindowInclusive(va, vs, nr uint8) bool { return modDiff(nr, va) <= modDiff(vs, va) }

// inRangeExclusiveUpper reports whether v lies in [lo, hi) modulo 128.
func inRangeExclusiveUpper(lo, hi, v uint8) bool { return modDiff(v, lo) < modDiff(hi, lo) }

// drainQueue implements the windowed send engine of spec.md §4.4: walks
// the Tx queue and transmits any resendable entry while the peer isn't
// busy and the window isn't full.
func (l *Link) drainQueue() {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	sentAny := false
	for _, e := range l.txq {
		if !e.resendable() {
			continue
		}
		if l.peerRxBusy {
			break
		}
		if modDiff(l.vs, l.va) >= uint8(l.Timers.K) {
			break
		}
		e.ns = l.vs
		e.sent = true
		e.pushedBack = false
		hdr := Header{SAPI: l.SAPI, TEI: l.txTEI(), CR: l.commandCR(), Type: FrameI, NS: e.ns, NR: l.vr}
		l.vs = (l.vs + 1) % 128
		l.sendFrameWithPayload(hdr, e.payload)
		sentAny = true
	}
	if sentAny {
		l.ackPending = false
		l.stopT203()
		if l.t200 == 0 {
			l.startT200()
		}
	}
}

// --------------------------------------------------------------- timers

func (l *Link) startT200() {
	if l.pool == nil || l.t200 != 0 {
		return
	}
	l.t200 = l.pool.Schedule(l.now, l.Timers.T200, func(interface{}) {
		l.t200 = 0
		l.onT200()
	}, nil)
}

func (l *Link) stopT200() {
	if l.pool != nil {
		l.pool.Cancel(l.t200)
	}
	l.t200 = 0
}

func (l *Link) startT203() {
	if l.pool == nil || l.t203 != 0 {
		return
	}
	l.t203 = l.pool.Schedule(l.now, l.Timers.T203, func(interface{}) {
		l.t203 = 0
		l.onT203()
	}, nil)
}

func (l *Link) stopT203() {
	if l.pool != nil {
		l.pool.Cancel(l.t203)
	}
	l.t203 = 0
}

func (l *Link) startRestart() {
	if l.pool == nil {
		return
	}
	l.restart = l.pool.Schedule(l.now, l.Timers.T200, func(interface{}) {
		l.restart = 0
		l.Establish()
	}, nil)
}

func (l *Link) onT200() {
	switch l.state {
	case StateAwaitingEstablishment:
		l.rc++
		if l.rc >= l.Timers.N200 {
			l.raiseMDLError(MDLErrorG)
			l.state = StateTEIAssigned
			l.txq = nil
			l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: q931bridge.DLReleaseIndication})
			return
		}
		l.startT200()
		l.sendFrame(l.cmdU(FrameSABME, true))
	case StateAwaitingRelease:
		l.rc++
		if l.rc >= l.Timers.N200 {
			l.raiseMDLError(MDLErrorH)
			l.state = StateTEIAssigned
			l.txq = nil
			l.post(q931bridge.Event{SAPI: l.SAPI, TEI: l.txTEI(), Kind: q931bridge.DLReleaseIndication})
			return
		}
		l.startT200()
		l.sendFrame(l.cmdU(FrameDISC, true))
	case StateMultiFrameEstablished:
		l.rc = 1
		l.state = StateTimerRecovery
		l.startT200()
		l.sendFrame(l.cmdS(FrameRR, true))
	case StateTimerRecovery:
		l.rc++
		if l.rc >= l.Timers.N200 {
			l.raiseMDLError(MDLErrorI)
			l.beginEstablishment()
			return
		}
		l.startT200()
		l.sendFrame(l.cmdS(FrameRR, true))
	}
}

func (l *Link) onT203() {
	if l.state != StateMultiFrameEstablished {
		return
	}
	l.rc = 1
	l.state = StateTimerRecovery
	l.startT200()
	l.sendFrame(l.cmdS(FrameRR, true))
}

// raiseMDLError logs and records the most recent MDL-ERROR raised during
// this turn; the controller drains it with TakePendingMDLError at the end
// of the ingress/timer turn, standing in for the source's zero-delay-timer
// deferral (spec.md §9).
func (l *Link) raiseMDLError(e MDLError) {
	l.pendingMDLError = &e
	l.logf().WithField("mdl_error", string(e)).Warn("q921: MDL-ERROR")
}

// TakePendingMDLError returns and clears the most recently raised
// MDL-ERROR, if any.
func (l *Link) TakePendingMDLError() (MDLError, bool) {
	if l.pendingMDLError == nil {
		return 0, false
	}
	e := *l.pendingMDLError
	l.pendingMDLError = nil
	return e, true
}
