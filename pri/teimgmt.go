// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package pri

import (
	"math/rand"

	"github.com/hhorai/libpri/q921"
	"github.com/hhorai/libpri/q931bridge"
)

// teiCheckState is the per-TEI sub-state of the NT reclamation poll
// cycle (spec.md §3 "Link" tei_check).
type teiCheckState int

const (
	teiCheckNone teiCheckState = iota
	teiCheckDead
	teiCheckReply
	teiCheckDeadReply
)

const teiCheckMaxPolls = 2

// teiMgmtIngress routes a decoded layer-2-management (SAPI 63) frame to
// the NT-side or TE-side handler according to Config.Network (spec.md
// §4.4 "PTMP TEI management").
func (c *Controller) teiMgmtIngress(hdr q921.Header, payload []byte) {
	f, ok := q921.DecodeTEIMgmt(payload)
	if !ok {
		c.appendDiag("tei: dropping malformed management frame\n")
		return
	}
	if c.Config.Network {
		c.ntTEIMgmt(f)
	} else {
		c.teTEIMgmt(f)
	}
}

func (c *Controller) sendTEIMgmt(f q921.TEIMgmtFrame) {
	hdr := q921.Header{SAPI: q921.SAPILayer2Mgmt, TEI: q921.TEIGroup, CR: c.Config.Network, Type: q921.FrameUI, PF: false}
	c.egress(q921.EncodeHeader(hdr, q921.EncodeTEIMgmt(f)))
}

// --------------------------------------------------------------- NT side

// ntTEIMgmt handles the message types a network side can receive
// (spec.md §4.4, §6). The rest never arrive at the NT and are ignored.
func (c *Controller) ntTEIMgmt(f q921.TEIMgmtFrame) {
	switch f.MsgType {
	case q921.TEIRequest:
		c.ntAssignTEI(f)
	case q921.TEICheckResponse:
		c.ntCheckResponse(f)
	case q921.TEIVerify:
		if f.TEI != q921.TEIGroup {
			c.startTEICheck()
		}
	}
}

func (c *Controller) ntAssignTEI(f q921.TEIMgmtFrame) {
	if f.TEI != q921.TEIGroup {
		c.appendDiag("tei: identity request not addressed to group\n")
		c.sendTEIMgmt(q921.TEIMgmtFrame{Ri: f.Ri, MsgType: q921.TEIDenied, TEI: f.TEI})
		return
	}
	tei, ok := c.teiPool.Alloc()
	if !ok {
		c.logf().Warn("pri: TEI pool exhausted, reclaiming dead TEIs")
		c.sendTEIMgmt(q921.TEIMgmtFrame{Ri: f.Ri, MsgType: q921.TEIDenied, TEI: q921.TEIGroup})
		c.startTEICheck()
		return
	}
	c.attachDynamicLink(tei)
	c.sendTEIMgmt(q921.TEIMgmtFrame{Ri: f.Ri, MsgType: q921.TEIAssigned, TEI: tei})
	if c.teiPool.Full() {
		// Just handed out the last TEI; reclaim dead ones before the
		// next request has to be denied.
		c.startTEICheck()
	}
}

// startTEICheck begins the reclamation poll cycle unless one is already
// in progress: broadcast ID_CHECK_REQUEST, mark every assigned TEI dead,
// and arm T201. The cycle polls up to teiCheckMaxPolls times; whatever
// is still dead after the last poll is removed (spec.md §4.4, §8
// property 6).
func (c *Controller) startTEICheck() {
	if c.t201id != 0 {
		return
	}
	c.t201polls = 0
	c.runTEICheckPoll()
}

func (c *Controller) runTEICheckPoll() {
	c.t201polls++
	if c.t201polls > teiCheckMaxPolls {
		c.t201id = 0
		for tei, st := range c.teiCheck {
			if st == teiCheckDead {
				c.linkMDLError(tei, q921.MDLErrorB)
				c.removeDynamicLink(tei)
			}
		}
		c.teiCheck = nil
		return
	}
	if c.t201polls == 1 {
		c.teiCheck = make(map[uint8]teiCheckState)
		for _, b := range c.links {
			if b.sapi == q921.SAPICallControl && b.tei >= q921.TEIAutoFirst && b.tei <= q921.TEIAutoLast {
				c.teiCheck[b.tei] = teiCheckDead
			}
		}
	} else {
		for tei, st := range c.teiCheck {
			if st == teiCheckReply {
				c.teiCheck[tei] = teiCheckDeadReply
			}
		}
	}
	c.sendTEIMgmt(q921.TEIMgmtFrame{MsgType: q921.TEICheckRequest, TEI: q921.TEIGroup})
	c.t201id = c.Schedule(c.now, c.Config.timers().T201, func(interface{}) { c.runTEICheckPoll() }, nil)
}

func (c *Controller) ntCheckResponse(f q921.TEIMgmtFrame) {
	if c.teiCheck == nil {
		return
	}
	if f.TEI == q921.TEIGroup {
		c.appendDiag("tei: check response with invalid group TEI\n")
		return
	}
	st, known := c.teiCheck[f.TEI]
	if !known {
		// Response for a TEI we never assigned; tell the peer to drop it.
		c.sendTEIMgmt(q921.TEIMgmtFrame{MsgType: q921.TEIRemove, TEI: f.TEI})
		return
	}
	switch st {
	case teiCheckDead, teiCheckDeadReply:
		c.teiCheck[f.TEI] = teiCheckReply
	case teiCheckReply:
		// Second response in the same poll: duplicate TEI (spec.md §4.4).
		c.linkMDLError(f.TEI, q921.MDLErrorC)
		delete(c.teiCheck, f.TEI)
		c.sendTEIMgmt(q921.TEIMgmtFrame{MsgType: q921.TEIRemove, TEI: f.TEI})
		c.removeDynamicLink(f.TEI)
	}
}

func (c *Controller) linkMDLError(tei uint8, e q921.MDLError) {
	c.logf().WithField("mdl_error", string(e)).WithField("tei", tei).Warn("pri: tei management fault")
}

func (c *Controller) attachDynamicLink(tei uint8) {
	if c.findLink(q921.SAPICallControl, tei) != nil {
		return
	}
	b := c.newBoundLink(q921.SAPICallControl, tei)
	b.link.Tick(c.now)
	c.links = append(c.links, b)
	if !c.Config.Network {
		b.link.Establish()
	}
}

func (c *Controller) removeDynamicLink(tei uint8) {
	c.teiPool.Free(tei)
	for i, b := range c.links {
		if b.sapi == q921.SAPICallControl && b.tei == tei {
			c.links = append(c.links[:i], c.links[i+1:]...)
			c.postEvent(mdlRemoveEvent(tei))
			return
		}
	}
}

// --------------------------------------------------------------- TE side

func (c *Controller) teTEIMgmt(f q921.TEIMgmtFrame) {
	switch f.MsgType {
	case q921.TEIAssigned:
		c.teAssigned(f)
	case q921.TEIDenied:
		c.teDenied(f)
	case q921.TEICheckRequest:
		c.teCheckRequest(f)
	case q921.TEIRemove:
		c.teRemove(f)
	}
}

// RequestTEI starts the TE-side dynamic TEI acquisition handshake
// (spec.md §4.4 PTMP, TE side): broadcast ID_REQUEST with a fresh random
// Ri, and arm T202 for N202 retries (unbounded when layer 2 is
// configured persistent).
func (c *Controller) RequestTEI() {
	if c.myAssignedTEI >= 0 {
		return
	}
	c.teiRi = uint16(rand.Intn(65536))
	c.teiReqAttempts = 0
	c.sendTEIRequest()
}

func (c *Controller) sendTEIRequest() {
	c.teiReqAttempts++
	c.sendTEIMgmt(q921.TEIMgmtFrame{Ri: c.teiRi, MsgType: q921.TEIRequest, TEI: q921.TEIGroup})
	c.t202id = c.Schedule(c.now, c.Config.timers().T202, func(interface{}) { c.onT202() }, nil)
}

func (c *Controller) onT202() {
	c.t202id = 0
	if c.myAssignedTEI >= 0 {
		return
	}
	if c.Config.persistence() != q921.PersistenceKeepUp && c.teiReqAttempts >= c.Config.timers().N202 {
		c.logf().Warn("pri: TEI request abandoned after N202 attempts")
		return
	}
	c.teiRi = uint16(rand.Intn(65536))
	c.sendTEIRequest()
}

func (c *Controller) teAssigned(f q921.TEIMgmtFrame) {
	if c.myAssignedTEI >= 0 {
		if f.TEI == uint8(c.myAssignedTEI) && f.Ri != c.teiRi {
			// Our TEI handed to someone else: we hold the duplicate.
			tei := uint8(c.myAssignedTEI)
			c.dropOwnTEI(tei)
			c.RequestTEI()
		}
		return
	}
	if f.Ri != c.teiRi {
		return
	}
	c.Cancel(c.t202id)
	c.t202id = 0
	c.myAssignedTEI = int16(f.TEI)
	c.attachDynamicLink(f.TEI)
}

func (c *Controller) teDenied(f q921.TEIMgmtFrame) {
	if f.Ri != c.teiRi {
		return
	}
	c.logf().Warn("pri: TEI request denied")
}

func (c *Controller) teCheckRequest(f q921.TEIMgmtFrame) {
	if c.myAssignedTEI < 0 {
		return
	}
	tei := uint8(c.myAssignedTEI)
	if f.TEI != q921.TEIGroup && f.TEI != tei {
		return
	}
	c.teiRi = uint16(rand.Intn(65536))
	c.sendTEIMgmt(q921.TEIMgmtFrame{Ri: c.teiRi, MsgType: q921.TEICheckResponse, TEI: tei})
}

func (c *Controller) teRemove(f q921.TEIMgmtFrame) {
	if c.myAssignedTEI < 0 {
		return
	}
	tei := uint8(c.myAssignedTEI)
	if f.TEI != q921.TEIGroup && f.TEI != tei {
		return
	}
	c.dropOwnTEI(tei)
	c.RequestTEI()
}

func (c *Controller) dropOwnTEI(tei uint8) {
	c.myAssignedTEI = -1
	c.postEvent(mdlRemoveEvent(tei))
	for i, b := range c.links {
		if b.sapi == q921.SAPICallControl && b.tei == tei {
			c.links = append(c.links[:i], c.links[i+1:]...)
			return
		}
	}
}

func mdlRemoveEvent(tei uint8) q931bridge.Event {
	return q931bridge.Event{SAPI: q921.SAPICallControl, TEI: tei, Kind: q931bridge.MDLRemoveIndication}
}
