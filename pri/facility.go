// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package pri

import (
	"github.com/hhorai/libpri/rose"
)

// roseSwitch maps the controller enumeration onto the ROSE conversion
// table selector; the two enumerations are kept in the same order
// (spec.md §6 "Switch types").
func (c *Controller) roseSwitch() rose.SwitchType {
	return rose.SwitchType(c.Config.SwitchType)
}

// NextInvokeID hands out the controller's next ROSE invoke id,
// wrapping within the positive signed range (spec.md §3 Controller
// "last-invoke-id"; kept per-controller per the §9 design note).
func (c *Controller) NextInvokeID() int32 {
	c.lastInvokeID++
	if c.lastInvokeID > 0x7fff {
		c.lastInvokeID = 1
	}
	return c.lastInvokeID
}

// NewCallRef allocates the next call-reference value, skipping 0 (the
// dummy call reference belongs to c.Dummy).
func (c *Controller) NewCallRef() uint16 {
	c.callRefCounter++
	if c.callRefCounter == 0 || c.callRefCounter > 0x7fff {
		c.callRefCounter = 1
	}
	return c.callRefCounter
}

// EncodeFacility builds the contents of a Q.931 Facility IE for msgs:
// the protocol-profile header followed by each ROSE component, encoded
// through the conversion tables this controller's switchtype selects
// (spec.md §4.3).
func (c *Controller) EncodeFacility(msgs ...rose.Message) ([]byte, bool) {
	hdr := rose.FacilityHeader{ProtocolProfile: rose.ProfileROSE}
	if c.Config.SwitchType == SwitchDMS100 {
		si := rose.DMS100ServiceIDRLT
		hdr.ServiceIndicator = &si
	}
	out := rose.EncodeFacilityHeader(hdr)
	for _, msg := range msgs {
		encoded, ok := rose.Encode(make([]byte, 0, 256), c.roseSwitch(), msg)
		if !ok {
			return nil, false
		}
		out = append(out, encoded...)
	}
	return out, true
}

// DecodeFacility unwraps a Facility IE's contents and decodes every
// ROSE component it carries.
func (c *Controller) DecodeFacility(contents []byte) (rose.FacilityHeader, []rose.Message, bool) {
	hdr, rest, ok := rose.DecodeFacilityHeader(contents, c.Config.SwitchType == SwitchDMS100)
	if !ok {
		return rose.FacilityHeader{}, nil, false
	}
	var msgs []rose.Message
	for len(rest) > 0 {
		msg, after, ok := rose.Decode(rest, c.roseSwitch())
		if !ok {
			// A malformed trailing component drops the frame's remainder
			// but keeps what already decoded (spec.md §7 "Parse errors").
			return hdr, msgs, len(msgs) > 0
		}
		msgs = append(msgs, msg)
		rest = after
	}
	return hdr, msgs, true
}
