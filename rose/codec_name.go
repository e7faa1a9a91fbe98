// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// Presentation mirrors the Q.SIG Name CHOICE (spec.md §8 scenario S4).
type Presentation int

const (
	PresentationAllowed Presentation = iota
	PresentationRestricted
	PresentationRestrictedNull
	PresentationUnavailable
)

// CharSetISO88591 is the character-set value that selects the simple
// (bare OCTET STRING) name forms; any other value wraps the name in a
// NameSet with an explicit character-set integer.
const CharSetISO88591 = 1

// NameArg is the argument of the four Q.SIG name operations, shared by
// their ETSI-flavoured cross-imports in the NI2 and DMS-100 tables.
type NameArg struct {
	Name         string
	CharSet      int32 // 0 means CharSetISO88591
	Presentation Presentation
}

const maxNameLen = 50

var (
	nameAllowedSimpleTag    = ber.MakeTag(ber.ClassContext, 0)
	nameAllowedSetTag       = ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, 1)
	nameRestrictedSimpleTag = ber.MakeTag(ber.ClassContext, 2)
	nameRestrictedSetTag    = ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, 3)
	nameUnavailableTag      = ber.MakeTag(ber.ClassContext, 4)
	nameRestrictedNullTag   = ber.MakeTag(ber.ClassContext, 7)
)

func (a NameArg) charSet() int32 {
	if a.CharSet == 0 {
		return CharSetISO88591
	}
	return a.CharSet
}

func encodeNameSet(c *ber.Cursor, tag uint32, a NameArg) bool {
	lenPos, ok := c.BeginConstructed(tag, ber.LenFormShort)
	if !ok {
		return false
	}
	if !c.EncodeStringMax(universalOctetStr, []byte(a.Name), maxNameLen) {
		return false
	}
	if !c.EncodeInteger(universalInteger, a.charSet()) {
		return false
	}
	return c.EndConstructed(lenPos)
}

// encodeNameArg writes the Name CHOICE: the simple implicit OCTET
// STRING forms when the character set is ISO 8859-1 (spec.md §8 S4:
// presentation_allowed encodes as implicit [0] OCTET STRING), the
// NameSet forms otherwise, NULL forms for the no-name presentations.
func encodeNameArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(NameArg)
	if !ok {
		return false
	}
	switch a.Presentation {
	case PresentationAllowed:
		if a.charSet() == CharSetISO88591 {
			return c.EncodeStringMax(nameAllowedSimpleTag, []byte(a.Name), maxNameLen)
		}
		return encodeNameSet(c, nameAllowedSetTag, a)
	case PresentationRestricted:
		if a.charSet() == CharSetISO88591 {
			return c.EncodeStringMax(nameRestrictedSimpleTag, []byte(a.Name), maxNameLen)
		}
		return encodeNameSet(c, nameRestrictedSetTag, a)
	case PresentationRestrictedNull:
		return c.EncodeNull(nameRestrictedNullTag)
	default:
		return c.EncodeNull(nameUnavailableTag)
	}
}

func decodeNameSet(c *ber.Cursor) (name string, charSet int32, ok bool) {
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return "", 0, false
	}
	end := c.Pos + length
	tag, ok := c.DecodeTag()
	if !ok {
		return "", 0, false
	}
	s, ok := c.DecodeStringMax(tag, maxNameLen)
	if !ok {
		return "", 0, false
	}
	charSet = CharSetISO88591
	if c.Pos < end {
		if t, ok := c.DecodeTag(); !ok || t != universalInteger {
			return "", 0, false
		}
		charSet, ok = c.DecodeInteger()
		if !ok {
			return "", 0, false
		}
	}
	c.Pos = end
	return string(s), charSet, true
}

func decodeNameArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok {
		return nil, false
	}
	switch tag {
	case nameAllowedSimpleTag, nameRestrictedSimpleTag:
		s, ok := c.DecodeStringMax(tag, maxNameLen)
		if !ok {
			return nil, false
		}
		p := PresentationAllowed
		if tag == nameRestrictedSimpleTag {
			p = PresentationRestricted
		}
		return NameArg{Name: string(s), CharSet: CharSetISO88591, Presentation: p}, true
	case nameAllowedSetTag, nameRestrictedSetTag:
		s, cs, ok := decodeNameSet(c)
		if !ok {
			return nil, false
		}
		p := PresentationAllowed
		if tag == nameRestrictedSetTag {
			p = PresentationRestricted
		}
		return NameArg{Name: s, CharSet: cs, Presentation: p}, true
	case nameRestrictedNullTag:
		if !c.DecodeNull() {
			return nil, false
		}
		return NameArg{CharSet: CharSetISO88591, Presentation: PresentationRestrictedNull}, true
	case nameUnavailableTag:
		if !c.DecodeNull() {
			return nil, false
		}
		return NameArg{CharSet: CharSetISO88591, Presentation: PresentationUnavailable}, true
	default:
		return nil, false
	}
}
