// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// RLTOperationIndRes is the result body of the DMS-100 RLT_OperationInd
// operation: [0] IMPLICIT INTEGER callId. The invoke carries no
// argument.
type RLTOperationIndRes struct {
	CallID int32
}

// RLTThirdPartyArg is the DMS-100 RLT_ThirdParty invoke argument:
// SEQUENCE { callId [0] INTEGER, reason [1] INTEGER }.
type RLTThirdPartyArg struct {
	CallID int32
	Reason int32
}

// InitiateTransferArg is the NI2 InitiateTransfer invoke argument,
// also used by the 4ESS and 5ESS switches: [0] IMPLICIT INTEGER callId.
type InitiateTransferArg struct {
	CallID int32
}

var (
	rltCallIDTag = ber.MakeTag(ber.ClassContext, 0)
	rltReasonTag = ber.MakeTag(ber.ClassContext, 1)
)

func encodeRLTOperationIndRes(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(RLTOperationIndRes)
	if !ok {
		return false
	}
	return c.EncodeInteger(rltCallIDTag, a.CallID)
}

func decodeRLTOperationIndRes(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != rltCallIDTag {
		return nil, false
	}
	v, ok := c.DecodeInteger()
	if !ok {
		return nil, false
	}
	return RLTOperationIndRes{CallID: v}, true
}

func encodeRLTThirdPartyArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(RLTThirdPartyArg)
	if !ok {
		return false
	}
	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
	if !ok {
		return false
	}
	if !c.EncodeInteger(rltCallIDTag, a.CallID) {
		return false
	}
	if !c.EncodeInteger(rltReasonTag, a.Reason) {
		return false
	}
	return c.EndConstructed(lenPos)
}

func decodeRLTThirdPartyArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != universalSequence {
		return nil, false
	}
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	var a RLTThirdPartyArg
	if t, ok := c.DecodeTag(); !ok || t != rltCallIDTag {
		return nil, false
	}
	a.CallID, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	if t, ok := c.DecodeTag(); !ok || t != rltReasonTag {
		return nil, false
	}
	a.Reason, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	// Optional trailing information is skipped.
	if c.Pos > end {
		return nil, false
	}
	c.Pos = end
	return a, true
}

func encodeInitiateTransferArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(InitiateTransferArg)
	if !ok {
		return false
	}
	return c.EncodeInteger(rltCallIDTag, a.CallID)
}

func decodeInitiateTransferArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != rltCallIDTag {
		return nil, false
	}
	v, ok := c.DecodeInteger()
	if !ok {
		return nil, false
	}
	return InitiateTransferArg{CallID: v}, true
}
