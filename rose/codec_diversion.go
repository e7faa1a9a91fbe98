// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// CallDeflectionArg is the ETSI CallDeflection invoke argument:
// SEQUENCE { deflectionAddress, presentationAllowed BOOLEAN OPTIONAL }.
type CallDeflectionArg struct {
	Address                PartyNumber
	PresentationAllowed    bool
	HasPresentationAllowed bool
}

// CallReroutingArg is the ETSI CallRerouting invoke argument:
// SEQUENCE { reroutingReason ENUMERATED, calledAddress, reroutingCounter
// INTEGER, q931InfoElement }. The optional trailing members of the full
// ASN.1 definition are skipped on decode.
type CallReroutingArg struct {
	Reason        int32
	CalledAddress PartyNumber
	Counter       int32
	Q931ie        Q931ie
}

var universalBoolean = ber.MakeTag(ber.ClassUniversal, ber.TagBoolean)

func encodeDeflectionArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(CallDeflectionArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
	if !ok {
		return false
	}
	if !encodePartyNumber(c, a.Address) {
		return false
	}
	if a.HasPresentationAllowed {
		if !c.EncodeBoolean(universalBoolean, a.PresentationAllowed) {
			return false
		}
	}
	return c.EndConstructed(lenPos)
}

func decodeDeflectionArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return nil, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	var a CallDeflectionArg
	a.Address, ok = decodePartyNumber(c)
	if !ok {
		return nil, false
	}
	if c.Pos < end {
		if t, ok := c.DecodeTag(); !ok || t != universalBoolean {
			return nil, false
		}
		a.PresentationAllowed, ok = c.DecodeBoolean()
		if !ok {
			return nil, false
		}
		a.HasPresentationAllowed = true
	}
	c.Pos = end
	return a, true
}

func encodeReroutingArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(CallReroutingArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormU8)
	if !ok {
		return false
	}
	if !c.EncodeInteger(universalEnum, a.Reason) {
		return false
	}
	if !encodePartyNumber(c, a.CalledAddress) {
		return false
	}
	if !c.EncodeInteger(universalInteger, a.Counter) {
		return false
	}
	if !encodeQ931ie(c, a.Q931ie) {
		return false
	}
	return c.EndConstructed(lenPos)
}

func decodeReroutingArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return nil, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	var a CallReroutingArg
	if t, ok := c.DecodeTag(); !ok || t != universalEnum {
		return nil, false
	}
	a.Reason, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	a.CalledAddress, ok = decodePartyNumber(c)
	if !ok {
		return nil, false
	}
	if t, ok := c.DecodeTag(); !ok || t != universalInteger {
		return nil, false
	}
	a.Counter, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	a.Q931ie, ok = decodeQ931ie(c)
	if !ok {
		return nil, false
	}
	// Optional trailing members are skipped.
	if c.Pos > end {
		return nil, false
	}
	c.Pos = end
	return a, true
}
