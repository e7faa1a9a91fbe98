// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// CTIdentifyRes is the result of the Q.SIG CallTransferIdentify
// operation (its invoke carries no argument): SEQUENCE { callIdentity
// NumericString, reroutingNumber }.
type CTIdentifyRes struct {
	CallIdentity    string
	ReroutingNumber PartyNumber
}

// CTInitiateArg is shared by CallTransferInitiate and CallTransferSetup:
// SEQUENCE { callIdentity NumericString, reroutingNumber }.
type CTInitiateArg struct {
	CallIdentity    string
	ReroutingNumber PartyNumber
}

// CTCompleteArg is shared by CallTransferComplete and
// CallTransferUpdate: SEQUENCE { endDesignation ENUMERATED,
// redirectionNumber }.
type CTCompleteArg struct {
	EndDesignation    int32
	RedirectionNumber PartyNumber
}

const maxCallIdentityLen = 4

func encodeCTInitiateArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(CTInitiateArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
	if !ok {
		return false
	}
	if !c.EncodeStringMax(numericStringTag, []byte(a.CallIdentity), maxCallIdentityLen) {
		return false
	}
	if !encodePartyNumber(c, a.ReroutingNumber) {
		return false
	}
	return c.EndConstructed(lenPos)
}

func decodeCTInitiateArg(c *ber.Cursor) (arg interface{}, ok bool) {
	id, number, ok := decodeIdentityAndNumber(c)
	if !ok {
		return nil, false
	}
	return CTInitiateArg{CallIdentity: id, ReroutingNumber: number}, true
}

// decodeCTIdentifyArg decodes the CallTransferIdentify result body,
// which has the same shape as the initiate argument.
func decodeCTIdentifyArg(c *ber.Cursor) (arg interface{}, ok bool) {
	id, number, ok := decodeIdentityAndNumber(c)
	if !ok {
		return nil, false
	}
	return CTIdentifyRes{CallIdentity: id, ReroutingNumber: number}, true
}

func decodeIdentityAndNumber(c *ber.Cursor) (id string, number PartyNumber, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return "", PartyNumber{}, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return "", PartyNumber{}, false
	}
	end := c.Pos + length
	t, ok := c.DecodeTag()
	if !ok {
		return "", PartyNumber{}, false
	}
	s, ok := c.DecodeStringMax(t, maxCallIdentityLen)
	if !ok {
		return "", PartyNumber{}, false
	}
	number, ok = decodePartyNumber(c)
	if !ok || c.Pos > end {
		return "", PartyNumber{}, false
	}
	c.Pos = end
	return string(s), number, true
}

func encodeCTCompleteArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(CTCompleteArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
	if !ok {
		return false
	}
	if !c.EncodeInteger(universalEnum, a.EndDesignation) {
		return false
	}
	if !encodePartyNumber(c, a.RedirectionNumber) {
		return false
	}
	return c.EndConstructed(lenPos)
}

func decodeCTCompleteArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return nil, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	var a CTCompleteArg
	if t, ok := c.DecodeTag(); !ok || t != universalEnum {
		return nil, false
	}
	a.EndDesignation, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	a.RedirectionNumber, ok = decodePartyNumber(c)
	if !ok || c.Pos > end {
		return nil, false
	}
	c.Pos = end
	return a, true
}
