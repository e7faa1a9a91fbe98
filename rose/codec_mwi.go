// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// MWIActivateArg is the ETSI MWIActivate invoke argument (also reused
// for MWIIndicate, whose body is a compatible subset): SEQUENCE {
// receivingUserNr, basicService ENUMERATED, numberOfMessages INTEGER
// OPTIONAL }.
type MWIActivateArg struct {
	ReceivingUserNumber PartyNumber
	BasicService        int32
	MessageCount        int32
	HasCount            bool
}

// MWIDeactivateArg: SEQUENCE { receivingUserNr, basicService }.
type MWIDeactivateArg struct {
	ReceivingUserNumber PartyNumber
	BasicService        int32
}

func encodeMWIActivateArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(MWIActivateArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
	if !ok {
		return false
	}
	if !encodePartyNumber(c, a.ReceivingUserNumber) {
		return false
	}
	if !c.EncodeInteger(universalEnum, a.BasicService) {
		return false
	}
	if a.HasCount {
		if !c.EncodeInteger(universalInteger, a.MessageCount) {
			return false
		}
	}
	return c.EndConstructed(lenPos)
}

func decodeMWIActivateArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return nil, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	var a MWIActivateArg
	a.ReceivingUserNumber, ok = decodePartyNumber(c)
	if !ok {
		return nil, false
	}
	if t, ok := c.DecodeTag(); !ok || t != universalEnum {
		return nil, false
	}
	a.BasicService, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	if c.Pos < end {
		if t, ok := c.DecodeTag(); !ok || t != universalInteger {
			return nil, false
		}
		a.MessageCount, ok = c.DecodeInteger()
		if !ok {
			return nil, false
		}
		a.HasCount = true
	}
	c.Pos = end
	return a, true
}

func encodeMWIDeactivateArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(MWIDeactivateArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
	if !ok {
		return false
	}
	if !encodePartyNumber(c, a.ReceivingUserNumber) {
		return false
	}
	if !c.EncodeInteger(universalEnum, a.BasicService) {
		return false
	}
	return c.EndConstructed(lenPos)
}

func decodeMWIDeactivateArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return nil, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	var a MWIDeactivateArg
	a.ReceivingUserNumber, ok = decodePartyNumber(c)
	if !ok {
		return nil, false
	}
	if t, ok := c.DecodeTag(); !ok || t != universalEnum {
		return nil, false
	}
	a.BasicService, ok = c.DecodeInteger()
	if !ok || c.Pos > end {
		return nil, false
	}
	c.Pos = end
	return a, true
}
