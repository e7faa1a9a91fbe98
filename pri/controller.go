// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package pri

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hhorai/libpri/q921"
	"github.com/hhorai/libpri/q931bridge"
	"github.com/hhorai/libpri/sched"
)

// boundLink pairs a q921.Link with its (SAPI, TEI) key for routing.
type boundLink struct {
	link *q921.Link
	sapi uint8
	tei  uint8
}

// DummyCall is the minimal per-controller-or-per-link placeholder record
// of spec.md §9 ("Dummy call record"): in the source, two C structs are
// laid out back-to-back and a pointer to the dummy is obtained by address
// arithmetic; here it is simply an optional field owned by its Controller.
type DummyCall struct {
	CallRef uint16
}

// Controller is one D-channel's Q.921/ROSE core (spec.md §3
// "Controller").
type Controller struct {
	Config Config
	Log    *logrus.Entry

	// Write transmits a complete Q.921 frame (FCS appended by the
	// driver, spec.md §6). Read is not modeled as a callback here:
	// the caller pulls bytes and calls Ingress directly, matching the
	// "driver calls an ingress function" data-flow of spec.md §2.
	Write func(frame []byte) (int, error)

	// Deliver receives a Q.931 frame accepted from an I-frame payload.
	Deliver func(q931bridge.Frame)

	pool  *sched.Pool
	chain *sched.Chain

	links   []*boundLink
	teiPool q921.TEIPool
	Dummy   *DummyCall

	// now is the wall time of the current turn, recorded on entry to
	// every ingress/timer/upper-layer call so scheduler callbacks (which
	// carry no time of their own) can schedule follow-ups (spec.md §5).
	now time.Time

	// TEI management bookkeeping (spec.md §4.4 "PTMP TEI management").
	teiRi          uint16
	myAssignedTEI  int16
	teiReqAttempts int
	t202id         uint64
	t201id         uint64
	t201polls      int
	teiCheck       map[uint8]teiCheckState

	pendingEvent *q931bridge.Event

	msgLine bytes.Buffer // diagnostic line accumulation buffer (spec.md §9 pri_msg_line)

	lastInvokeID   int32
	callRefCounter uint16
}

// NewController constructs a controller and its initial link(s): a sole
// TEI_PRI link for PTP, or a broadcast group link plus an empty dynamic
// pool for PTMP (spec.md §3 "Controller" invariants).
func NewController(cfg Config, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Controller{
		Config:        cfg,
		Log:           log,
		pool:          sched.NewPool(),
		myAssignedTEI: -1,
		Dummy:         &DummyCall{},
	}
	c.pool.Log = c.logf()
	if cfg.PTP {
		c.links = append(c.links, c.newBoundLink(q921.SAPICallControl, q921.TEIPRI))
	} else {
		// PTMP: the broadcast link heads the list; dynamic-TEI links are
		// appended behind it as they are assigned (spec.md §3).
		c.links = append(c.links, c.newBoundLink(q921.SAPICallControl, q921.TEIGroup))
	}
	return c
}

func (c *Controller) logf() *logrus.Entry {
	return c.Log.WithFields(logrus.Fields{"network": c.Config.Network, "switchtype": c.Config.SwitchType})
}

// appendDiag feeds a diagnostic line into the accumulation buffer,
// flushing complete lines to the logger (spec.md §9 pri_msg_line; never
// involved in protocol decisions).
func (c *Controller) appendDiag(s string) {
	c.msgLine.WriteString(s)
	for {
		b := c.msgLine.Bytes()
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			break
		}
		c.logf().Debug(string(b[:i]))
		c.msgLine.Next(i + 1)
	}
}

func (c *Controller) egress(frame []byte) {
	if c.Write == nil {
		return
	}
	n, err := c.Write(frame)
	if err != nil || n != len(frame) {
		c.logf().WithError(err).Warn("pri: short write on D-channel egress")
	}
}

func (c *Controller) deliverUp(sapi, tei uint8) func(payload []byte) {
	return func(payload []byte) {
		if c.Deliver != nil {
			c.Deliver(q931bridge.Frame{SAPI: sapi, TEI: tei, Payload: payload})
		}
	}
}

// postEvent implements the single per-turn event slot (spec.md §5): the
// first call in a turn wins, later calls are dropped.
func (c *Controller) postEvent(ev q931bridge.Event) {
	if c.pendingEvent == nil {
		c.pendingEvent = &ev
	}
}

func (c *Controller) newBoundLink(sapi uint8, tei uint8) *boundLink {
	hooks := q921.Hooks{
		Transmit:  c.egress,
		Deliver:   c.deliverUp(sapi, tei),
		PostEvent: c.postEvent,
		Log:       c.logf(),
	}
	link := q921.New(c.pool, sapi, int16(tei), c.Config.Network, c.Config.PTP, c.Config.timers(), c.Config.persistence(), hooks)
	return &boundLink{link: link, sapi: sapi, tei: tei}
}

func (c *Controller) findLink(sapi, tei uint8) *q921.Link {
	for _, b := range c.links {
		if b.sapi == sapi && b.tei == tei {
			return b.link
		}
	}
	return nil
}

func (c *Controller) tick(now time.Time) {
	c.now = now
	for _, b := range c.links {
		b.link.Tick(now)
	}
}

// drainDeferred processes each touched link's pending MDL-ERROR,
// deciding MDL-REMOVE versus a logged-only fault depending on role and
// PTP/PTMP (spec.md §4.4 "MDL errors").
func (c *Controller) drainDeferred() {
	for i := 0; i < len(c.links); i++ {
		b := c.links[i]
		e, ok := b.link.TakePendingMDLError()
		if !ok {
			continue
		}
		if c.Config.PTP && e == q921.MDLErrorJ {
			c.postEvent(q931bridge.Event{SAPI: b.sapi, TEI: b.tei, Kind: q931bridge.DChanDown, MDLErr: byte(e)})
			continue
		}
		if !c.Config.PTP && b.tei != q921.TEIPRI && (e == q921.MDLErrorB || e == q921.MDLErrorG || e == q921.MDLErrorH) {
			c.removeDynamicLink(b.tei)
			i--
		}
	}
}

// Ingress parses one received Q.921 frame and routes it, returning the
// single event (if any) this turn produced (spec.md §4.5).
func (c *Controller) Ingress(now time.Time, buf []byte) (*q931bridge.Event, bool) {
	c.pendingEvent = nil
	c.tick(now)

	// The driver hands frames up with the two-octet FCS it verified
	// still attached (spec.md §6); it is not part of the Q.921 payload.
	if len(buf) < 2 {
		c.appendDiag("q921: dropping short frame\n")
		return nil, false
	}
	buf = buf[:len(buf)-2]

	hdr, ok := q921.DecodeHeader(buf)
	if !ok {
		c.appendDiag("q921: dropping malformed frame\n")
		return nil, false
	}
	payload := hdr.Payload(buf)

	if hdr.SAPI == q921.SAPILayer2Mgmt {
		c.teiMgmtIngress(hdr, payload)
	} else if link := c.findLink(hdr.SAPI, hdr.TEI); link != nil {
		link.Receive(hdr, payload)
	} else if c.Config.BRI && c.Config.Network && !c.Config.PTP {
		c.sendTEIMgmt(q921.TEIMgmtFrame{MsgType: q921.TEIRemove, TEI: hdr.TEI})
	}

	c.drainDeferred()
	return c.takeEvent()
}

func (c *Controller) takeEvent() (*q931bridge.Event, bool) {
	if c.pendingEvent == nil {
		return nil, false
	}
	ev := c.pendingEvent
	c.pendingEvent = nil
	return ev, true
}

// NextDeadline reports the earliest pending timer deadline across this
// controller's scheduler pool.
func (c *Controller) NextDeadline() (time.Time, bool) { return c.pool.NextDeadline() }

// RunReady advances ready timers and returns the single event (if any)
// this pass produced; the caller loops until ok is false (spec.md §4.1
// run-ready).
func (c *Controller) RunReady(now time.Time) (*q931bridge.Event, bool) {
	c.pendingEvent = nil
	c.tick(now)
	stopped := c.pool.RunReady(now, func() bool { return c.pendingEvent != nil })
	if !stopped {
		c.drainDeferred()
	}
	return c.takeEvent()
}

// SendQ931 queues a Q.931 payload as an I-frame on the link for
// (sapi, tei), triggering establishment if necessary.
func (c *Controller) SendQ931(now time.Time, sapi, tei uint8, payload []byte) error {
	c.tick(now)
	link := c.findLink(sapi, tei)
	if link == nil {
		return fmt.Errorf("pri: no link for sapi=%d tei=%d", sapi, tei)
	}
	link.SendUp(payload)
	return nil
}

// Release tears down the link for (sapi, tei).
func (c *Controller) Release(now time.Time, sapi, tei uint8) error {
	c.tick(now)
	link := c.findLink(sapi, tei)
	if link == nil {
		return fmt.Errorf("pri: no link for sapi=%d tei=%d", sapi, tei)
	}
	link.Release()
	return nil
}

// Schedule exposes the controller's timer pool to upper-layer
// collaborators needing their own timers (Q.931/supplementary-service
// timers of spec.md §6), sharing the same NFAS-disjoint ID space.
func (c *Controller) Schedule(now time.Time, delay time.Duration, cb sched.Callback, data interface{}) uint64 {
	return c.pool.Schedule(now, delay, cb, data)
}

// Cancel cancels id, walking the NFAS chain if this controller doesn't
// own it (spec.md §4.1 cancel).
func (c *Controller) Cancel(id uint64) {
	sched.CancelAcross(c.chain, c.pool, id, c.logf())
}

// Start kicks off whatever the configured role needs to bring layer 2
// up: TE PTMP begins TEI acquisition; a persistent PTP link establishes
// immediately. A non-persistent PTP link waits for the first queued
// I-frame or the peer's SABME instead.
func (c *Controller) Start(now time.Time) {
	c.tick(now)
	switch {
	case !c.Config.PTP && !c.Config.Network:
		c.RequestTEI()
	case c.Config.PTP && c.Config.persistence() == q921.PersistenceKeepUp:
		if link := c.findLink(q921.SAPICallControl, q921.TEIPRI); link != nil {
			link.Establish()
		}
	}
}

// Establish explicitly requests layer-2 establishment on the link for
// (sapi, tei) without queueing an I-frame.
func (c *Controller) Establish(now time.Time, sapi, tei uint8) error {
	c.tick(now)
	link := c.findLink(sapi, tei)
	if link == nil {
		return fmt.Errorf("pri: no link for sapi=%d tei=%d", sapi, tei)
	}
	link.Establish()
	return nil
}

// NFASGroup is a flat group of controllers whose D-channels back the
// same spans (spec.md §9 "NFAS master/slave list"): scheduler IDs stay
// disjoint across members, and cancellation resolves ownership through
// the group rather than a master/slave pointer walk.
type NFASGroup struct {
	chain   sched.Chain
	members []*Controller
}

// Attach adds c to the group. A controller belongs to at most one group.
func (g *NFASGroup) Attach(c *Controller) {
	g.chain.Join(c.pool)
	g.members = append(g.members, c)
	c.chain = &g.chain
}

// NextDeadline reports the earliest pending deadline across every
// member controller.
func (g *NFASGroup) NextDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, c := range g.members {
		when, ok := c.NextDeadline()
		if !ok {
			continue
		}
		if !found || when.Before(earliest) {
			earliest = when
			found = true
		}
	}
	return earliest, found
}
