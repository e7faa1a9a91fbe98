// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// NumberPlan selects the PartyNumber CHOICE member.
type NumberPlan int

const (
	PlanUnknown NumberPlan = iota
	PlanPublic
	PlanPrivate
)

// PartyNumber is the common address helper shared by the diversion, CT,
// and MWI argument codecs (spec.md §4.3 "common Address/PartyNumber
// helpers"). Unknown numbers carry bare digits; public and private
// numbers add a type-of-number.
type PartyNumber struct {
	Plan         NumberPlan
	TypeOfNumber int32
	Digits       string
}

const maxDigits = 20

var (
	unknownNumberTag = ber.MakeTag(ber.ClassContext, 0)
	publicNumberTag  = ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, 1)
	privateNumberTag = ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, 5)

	universalEnum      = ber.MakeTag(ber.ClassUniversal, ber.TagEnum)
	universalOctetStr  = ber.MakeTag(ber.ClassUniversal, ber.TagOctetStr)
	numericStringTag   = ber.MakeTag(ber.ClassUniversal, 0x12)
	q931ieTag          = ber.MakeTag(ber.ClassApp, 0)
)

func encodePartyNumber(c *ber.Cursor, n PartyNumber) bool {
	switch n.Plan {
	case PlanPublic, PlanPrivate:
		tag := publicNumberTag
		if n.Plan == PlanPrivate {
			tag = privateNumberTag
		}
		lenPos, ok := c.BeginConstructed(tag, ber.LenFormShort)
		if !ok {
			return false
		}
		if !c.EncodeInteger(universalEnum, n.TypeOfNumber) {
			return false
		}
		if !c.EncodeStringMax(numericStringTag, []byte(n.Digits), maxDigits) {
			return false
		}
		return c.EndConstructed(lenPos)
	default:
		return c.EncodeStringMax(unknownNumberTag, []byte(n.Digits), maxDigits)
	}
}

// decodePartyNumber reads one PartyNumber CHOICE member, tag included.
func decodePartyNumber(c *ber.Cursor) (n PartyNumber, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok {
		return PartyNumber{}, false
	}
	return decodePartyNumberTag(c, tag)
}

func decodePartyNumberTag(c *ber.Cursor, tag uint32) (n PartyNumber, ok bool) {
	switch tag {
	case unknownNumberTag:
		s, ok := c.DecodeStringMax(tag, maxDigits)
		if !ok {
			return PartyNumber{}, false
		}
		return PartyNumber{Plan: PlanUnknown, Digits: string(s)}, true
	case publicNumberTag, privateNumberTag:
		length, ok := c.DecodeLength()
		if !ok || length < 0 {
			return PartyNumber{}, false
		}
		end := c.Pos + length
		if t, ok := c.DecodeTag(); !ok || t != universalEnum {
			return PartyNumber{}, false
		}
		ton, ok := c.DecodeInteger()
		if !ok {
			return PartyNumber{}, false
		}
		t, ok := c.DecodeTag()
		if !ok {
			return PartyNumber{}, false
		}
		s, ok := c.DecodeStringMax(t, maxDigits)
		if !ok || c.Pos > end {
			return PartyNumber{}, false
		}
		c.Pos = end
		plan := PlanPublic
		if tag == privateNumberTag {
			plan = PlanPrivate
		}
		return PartyNumber{Plan: plan, TypeOfNumber: ton, Digits: string(s)}, true
	default:
		return PartyNumber{}, false
	}
}

// Q931ie is a raw Q.931 information element carried inside a ROSE
// argument as [APPLICATION 0] IMPLICIT OCTET STRING; the ROSE layer
// never parses its contents (spec.md §4.3).
type Q931ie struct {
	Contents []byte
}

const maxQ931ieLen = 255

func encodeQ931ie(c *ber.Cursor, ie Q931ie) bool {
	return c.EncodeStringBin(q931ieTag, ie.Contents)
}

func decodeQ931ie(c *ber.Cursor) (ie Q931ie, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok || tag != q931ieTag {
		return Q931ie{}, false
	}
	s, ok := c.DecodeStringBin(tag, maxQ931ieLen)
	if !ok {
		return Q931ie{}, false
	}
	return Q931ie{Contents: s}, true
}
