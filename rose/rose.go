// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package rose implements ROSE (Remote Operations Service Element)
// component encoding/decoding over ASN.1 BER (spec.md §4.3): invoke,
// result, error, and reject components, dispatched through a
// per-switchtype operation/error conversion table to operation-specific
// argument codecs.
package rose

import "github.com/hhorai/libpri/ber"

// SwitchType selects which conversion table encode/decode dispatches
// through (spec.md §6 "Switch types").
type SwitchType int

const (
	SwitchUnknown SwitchType = iota
	SwitchNI1
	SwitchNI2
	SwitchDMS100
	SwitchLucent5E
	SwitchATT4ESS
	SwitchEuroISDNE1
	SwitchEuroISDNT1
	SwitchQSIG
	SwitchGR303EOC
	SwitchGR303TMC
)

// OpCode is the library-wide operation-value enumeration (spec.md §3
// "ROSE message"). OpUnknown is the decode sentinel used when no
// conversion-table entry matches (spec.md §4.3).
type OpCode int

const (
	OpUnknown OpCode = iota

	// ETSI diversion and explicit call transfer.
	OpEctExecute
	OpCallDeflection
	OpCallRerouting

	// ETSI advice of charge.
	OpAOCDChargingUnit
	OpAOCEChargingUnit

	// ETSI message waiting indication.
	OpMWIActivate
	OpMWIDeactivate
	OpMWIIndicate

	// Q.SIG name operations (also pirated by NI2 and DMS-100).
	OpCallingName
	OpCalledName
	OpConnectedName
	OpBusyName

	// Q.SIG call transfer.
	OpCTIdentify
	OpCTAbandon
	OpCTInitiate
	OpCTSetup
	OpCTActive
	OpCTComplete
	OpCTUpdate

	// NI2 operations, also used by 4ESS/5ESS.
	OpInformationFollowing
	OpInitiateTransfer

	// DMS-100 proprietary Release Link Trunk operations.
	OpRLTOperationInd
	OpRLTThirdParty
)

// ErrCode is the library-wide error-value enumeration.
type ErrCode int

const (
	ErrUnknown ErrCode = iota
	ErrNotSubscribed
	ErrRejectedByNetwork
	ErrRejectedByUser
	ErrNotAvailable
	ErrInvalidServedUserNumber
	ErrInvalidCallState
	ErrResourceUnavailable
	ErrInvalidDivertedToNumber
	ErrSpecialServiceNumber
	ErrNoChargingInfoAvailable
	ErrSupplementaryServiceInteractionNotAllowed
	ErrRLTBridgeFail
	ErrRLTCallIDNotFound
	ErrRLTNotAllowed
)

// Kind is the ROSE component type (spec.md §3 "ROSE message").
type Kind int

const (
	KindInvoke Kind = iota
	KindResult
	KindError
	KindReject
)

// outer component tags (spec.md §4.3): invoke [1], result [2], error [3],
// reject [4], all context-class constructed.
const (
	tagInvoke = 1
	tagResult = 2
	tagError  = 3
	tagReject = 4
)

// ProblemCategory selects which of the four reject-problem code spaces
// msg.Problem.Code is drawn from (spec.md §3 "ROSE message").
type ProblemCategory int

const (
	ProblemGeneral ProblemCategory = iota
	ProblemInvoke
	ProblemResult
	ProblemError
)

// Problem is the reject component's problem code (spec.md §3).
type Problem struct {
	Category ProblemCategory
	Code     int32
}

// Message is the ROSE component sum type (spec.md §3). Exactly the
// fields relevant to Kind are populated; this mirrors the teacher's
// flat-struct-with-mode-field style (encoding/nas.UE, encoding/ngap.GNB)
// rather than an interface hierarchy, per SPEC_FULL.md's MODULE LAYOUT.
type Message struct {
	Kind Kind

	InvokeID    int32
	HasInvokeID bool // always true for Invoke/Result/Error; optional for Reject
	LinkedID    *int32

	Op  OpCode
	Arg interface{} // operation-specific argument, populated by the op's codec

	ErrCode ErrCode

	Problem Problem
}

func outerTag(k Kind) (uint32, bool) {
	switch k {
	case KindInvoke:
		return ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, tagInvoke), true
	case KindResult:
		return ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, tagResult), true
	case KindError:
		return ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, tagError), true
	case KindReject:
		return ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, tagReject), true
	default:
		return 0, false
	}
}

func kindForOuterTag(tag uint32) (Kind, bool) {
	switch ber.TagNumber(tag) {
	case tagInvoke:
		return KindInvoke, true
	case tagResult:
		return KindResult, true
	case tagError:
		return KindError, true
	case tagReject:
		return KindReject, true
	default:
		return 0, false
	}
}

var universalInteger = ber.MakeTag(ber.ClassUniversal, ber.TagInteger)
var universalNull = ber.MakeTag(ber.ClassUniversal, ber.TagNull)
var universalOID = ber.MakeTag(ber.ClassUniversal, ber.TagOID)
var universalSequence = ber.MakeTag(ber.ClassUniversal|ber.ConstructedFlag, ber.TagSequence)

// linkedIDTag is context [0] IMPLICIT INTEGER.
var linkedIDTag = ber.MakeTag(ber.ClassContext, 0)

// Encode writes the BER encoding of msg into buf's capacity, starting at
// index 0 (existing contents are overwritten), and returns the encoded bytes.
func Encode(buf []byte, st SwitchType, msg Message) (out []byte, ok bool) {
	c := ber.NewEncoder(buf)
	tag, ok := outerTag(msg.Kind)
	if !ok {
		return nil, false
	}
	lenPos, ok := c.BeginConstructed(tag, ber.LenFormU8)
	if !ok {
		return nil, false
	}

	switch msg.Kind {
	case KindInvoke:
		if !c.EncodeInteger(universalInteger, msg.InvokeID) {
			return nil, false
		}
		if msg.LinkedID != nil {
			if !c.EncodeInteger(linkedIDTag, *msg.LinkedID) {
				return nil, false
			}
		}
		if !encodeOpValue(c, st, msg.Op) {
			return nil, false
		}
		if entry := findOp(st, msg.Op); entry != nil && entry.Encode != nil {
			if !entry.Encode(c, msg.Arg) {
				return nil, false
			}
		}
	case KindResult:
		if !c.EncodeInteger(universalInteger, msg.InvokeID) {
			return nil, false
		}
		if msg.Op != OpUnknown {
			innerLenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormU8)
			if !ok {
				return nil, false
			}
			if !encodeOpValue(c, st, msg.Op) {
				return nil, false
			}
			if entry := findOp(st, msg.Op); entry != nil && entry.Encode != nil {
				if !entry.Encode(c, msg.Arg) {
					return nil, false
				}
			}
			if !c.EndConstructed(innerLenPos) {
				return nil, false
			}
		}
	case KindError:
		if !c.EncodeInteger(universalInteger, msg.InvokeID) {
			return nil, false
		}
		if !encodeErrValue(c, st, msg.ErrCode) {
			return nil, false
		}
	case KindReject:
		if msg.HasInvokeID {
			if !c.EncodeInteger(universalInteger, msg.InvokeID) {
				return nil, false
			}
		} else {
			if !c.EncodeNull(universalNull) {
				return nil, false
			}
		}
		problemTag := ber.MakeTag(ber.ClassContext, uint32(msg.Problem.Category))
		if !c.EncodeInteger(problemTag, msg.Problem.Code) {
			return nil, false
		}
	}

	if !c.EndConstructed(lenPos) {
		return nil, false
	}
	return c.Bytes(), true
}

// Decode reads one ROSE component from the front of buf and returns the
// remaining, unconsumed bytes (a Facility IE may carry more than one
// component back to back, spec.md §6).
func Decode(buf []byte, st SwitchType) (msg Message, rest []byte, ok bool) {
	c := ber.NewDecoder(buf)
	tag, ok := c.DecodeTag()
	if !ok {
		return Message{}, nil, false
	}
	kind, ok := kindForOuterTag(tag)
	if !ok {
		return Message{}, nil, false
	}
	length, ok := c.DecodeLength()
	if !ok {
		return Message{}, nil, false
	}

	bodyStart := c.Pos
	var bodyEnd int
	var after int
	if length >= 0 {
		bodyEnd = bodyStart + length
		after = bodyEnd
	} else {
		if !c.SkipIndefiniteBody() {
			return Message{}, nil, false
		}
		after = c.Pos
		bodyEnd = after - 2
	}
	if bodyEnd > len(buf) {
		return Message{}, nil, false
	}

	body := &ber.Cursor{Buf: buf[:bodyEnd], Pos: bodyStart}
	msg.Kind = kind

	switch kind {
	case KindInvoke:
		if t, ok := body.DecodeTag(); !ok || t != universalInteger {
			return Message{}, nil, false
		}
		id, ok := body.DecodeInteger()
		if !ok {
			return Message{}, nil, false
		}
		msg.InvokeID, msg.HasInvokeID = id, true
		if body.Pos < bodyEnd {
			if peekTag(body) == linkedIDTag {
				body.DecodeTag()
				id, ok := body.DecodeInteger()
				if !ok {
					return Message{}, nil, false
				}
				msg.LinkedID = &id
			}
		}
		op, ok := decodeOpValue(body, st)
		if !ok {
			return Message{}, nil, false
		}
		msg.Op = op
		if entry := findOp(st, op); entry != nil && entry.Decode != nil && body.Pos < bodyEnd {
			arg, ok := entry.Decode(body)
			if !ok {
				return Message{}, nil, false
			}
			msg.Arg = arg
		}
	case KindResult:
		if t, ok := body.DecodeTag(); !ok || t != universalInteger {
			return Message{}, nil, false
		}
		id, ok := body.DecodeInteger()
		if !ok {
			return Message{}, nil, false
		}
		msg.InvokeID, msg.HasInvokeID = id, true
		if body.Pos < bodyEnd {
			innerTag, ok := body.DecodeTag()
			if !ok || innerTag != universalSequence {
				return Message{}, nil, false
			}
			innerLen, ok := body.DecodeLength()
			if !ok || innerLen < 0 {
				return Message{}, nil, false
			}
			innerEnd := body.Pos + innerLen
			inner := &ber.Cursor{Buf: buf[:innerEnd], Pos: body.Pos}
			op, ok := decodeOpValue(inner, st)
			if !ok {
				return Message{}, nil, false
			}
			msg.Op = op
			if entry := findOp(st, op); entry != nil && entry.Decode != nil && inner.Pos < innerEnd {
				arg, ok := entry.Decode(inner)
				if !ok {
					return Message{}, nil, false
				}
				msg.Arg = arg
			}
			body.Pos = innerEnd
		}
	case KindError:
		if t, ok := body.DecodeTag(); !ok || t != universalInteger {
			return Message{}, nil, false
		}
		id, ok := body.DecodeInteger()
		if !ok {
			return Message{}, nil, false
		}
		msg.InvokeID, msg.HasInvokeID = id, true
		ec, ok := decodeErrValue(body, st)
		if !ok {
			return Message{}, nil, false
		}
		msg.ErrCode = ec
	case KindReject:
		if peekTag(body) == universalNull {
			body.DecodeTag()
			if !body.DecodeNull() {
				return Message{}, nil, false
			}
			msg.HasInvokeID = false
		} else {
			if t, ok := body.DecodeTag(); !ok || t != universalInteger {
				return Message{}, nil, false
			}
			id, ok := body.DecodeInteger()
			if !ok {
				return Message{}, nil, false
			}
			msg.InvokeID, msg.HasInvokeID = id, true
		}
		problemTag, ok := body.DecodeTag()
		if !ok {
			return Message{}, nil, false
		}
		code, ok := body.DecodeInteger()
		if !ok {
			return Message{}, nil, false
		}
		msg.Problem = Problem{Category: ProblemCategory(ber.TagNumber(problemTag)), Code: code}
	}

	return msg, buf[after:], true
}

// peekTag returns the tag at c.Pos without consuming it, or 0 if the
// cursor is exhausted.
func peekTag(c *ber.Cursor) uint32 {
	save := c.Pos
	tag, ok := c.DecodeTag()
	c.Pos = save
	if !ok {
		return 0
	}
	return tag
}

// encodeOpValue writes the operation-value for op: an OID if the table
// entry supplies a prefix, otherwise a bare INTEGER localValue (spec.md
// §4.3).
func encodeOpValue(c *ber.Cursor, st SwitchType, op OpCode) bool {
	entry := findOp(st, op)
	if entry == nil {
		return false
	}
	if entry.OIDPrefix != nil {
		oid := ber.OID{Values: append(append([]uint32{}, entry.OIDPrefix.Values...), entry.TrailingSubID)}
		return c.EncodeOID(universalOID, oid)
	}
	return c.EncodeInteger(universalInteger, entry.Local)
}

func encodeErrValue(c *ber.Cursor, st SwitchType, ec ErrCode) bool {
	entry := findErr(st, ec)
	if entry == nil {
		return false
	}
	if entry.OIDPrefix != nil {
		oid := ber.OID{Values: append(append([]uint32{}, entry.OIDPrefix.Values...), entry.TrailingSubID)}
		return c.EncodeOID(universalOID, oid)
	}
	return c.EncodeInteger(universalInteger, entry.Local)
}

// decodeOpValue peeks the operation-value tag: INTEGER selects by
// localValue, OBJECT IDENTIFIER selects by matching trailing sub-id then
// prefix. No match decodes as OpUnknown with no argument decoding
// attempted (spec.md §4.3).
func decodeOpValue(c *ber.Cursor, st SwitchType) (OpCode, bool) {
	tag, ok := c.DecodeTag()
	if !ok {
		return OpUnknown, false
	}
	switch tag {
	case universalInteger:
		v, ok := c.DecodeInteger()
		if !ok {
			return OpUnknown, false
		}
		if entry := findOpByLocal(st, v); entry != nil {
			return entry.Op, true
		}
		return OpUnknown, true
	case universalOID:
		oid, ok := c.DecodeOID()
		if !ok {
			return OpUnknown, false
		}
		if entry := findOpByOID(st, oid); entry != nil {
			return entry.Op, true
		}
		return OpUnknown, true
	default:
		return OpUnknown, false
	}
}

func decodeErrValue(c *ber.Cursor, st SwitchType) (ErrCode, bool) {
	tag, ok := c.DecodeTag()
	if !ok {
		return ErrUnknown, false
	}
	switch tag {
	case universalInteger:
		v, ok := c.DecodeInteger()
		if !ok {
			return ErrUnknown, false
		}
		if entry := findErrByLocal(st, v); entry != nil {
			return entry.Err, true
		}
		return ErrUnknown, true
	case universalOID:
		oid, ok := c.DecodeOID()
		if !ok {
			return ErrUnknown, false
		}
		if entry := findErrByOID(st, oid); entry != nil {
			return entry.Err, true
		}
		return ErrUnknown, true
	default:
		return ErrUnknown, false
	}
}
