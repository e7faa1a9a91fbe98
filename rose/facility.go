// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

// Facility-IE header wrap/unwrap (spec.md §4.3, §6): the protocol
// profile byte, an optional DMS-100 service-indicator byte, and an
// optional extension header ({NFE, NPP, interpretation}) that precede
// the ROSE component(s) inside a Q.931 Facility IE. None of this is
// ROSE proper; it is handled at the IE boundary, as the spec requires.

// Protocol profile values (low 7 bits of the first octet, whose top bit
// is always the BER/ASN.1 extension-continuation bit set to 1).
const (
	ProfileROSE       uint8 = 0x00
	ProfileExtensions uint8 = 0x01
)

// DMS100ServiceIDRLT is the service-indicator octet value (low 7 bits)
// DMS-100 switches place between the protocol profile and the ROSE
// components for Release Link Trunk operation.
const DMS100ServiceIDRLT uint8 = 0x3e

const (
	extTagNFE            = 0xa0
	extTagNPP            = 0xa1
	extTagInterpretation = 0xa2
)

// ExtensionHeader carries the three optional single-octet extension
// sub-components, present only under ProfileExtensions.
type ExtensionHeader struct {
	NFE            *uint8
	NPP            *uint8
	Interpretation *uint8
}

// FacilityHeader is the decoded non-ROSE prefix of a Facility IE.
type FacilityHeader struct {
	ProtocolProfile  uint8
	ServiceIndicator *uint8 // DMS-100 only
	Ext              *ExtensionHeader
}

// EncodeFacilityHeader emits h's bytes, to be followed by one or more
// encoded ROSE components.
func EncodeFacilityHeader(h FacilityHeader) []byte {
	out := []byte{0x80 | h.ProtocolProfile}
	if h.ServiceIndicator != nil {
		out = append(out, 0x80|*h.ServiceIndicator)
	}
	if h.Ext != nil {
		if h.Ext.NFE != nil {
			out = append(out, extTagNFE, 1, *h.Ext.NFE)
		}
		if h.Ext.NPP != nil {
			out = append(out, extTagNPP, 1, *h.Ext.NPP)
		}
		if h.Ext.Interpretation != nil {
			out = append(out, extTagInterpretation, 1, *h.Ext.Interpretation)
		}
	}
	return out
}

// DecodeFacilityHeader parses the non-ROSE prefix of buf. dms100 tells
// the decoder whether to expect the DMS-100 service-indicator octet; the
// switchtype is already known to the caller by the time a Facility IE is
// being decoded, so this is not guessed from the bitstream.
func DecodeFacilityHeader(buf []byte, dms100 bool) (h FacilityHeader, rest []byte, ok bool) {
	if len(buf) < 1 || buf[0]&0x80 == 0 {
		return FacilityHeader{}, nil, false
	}
	h.ProtocolProfile = buf[0] &^ 0x80
	pos := 1

	if dms100 {
		if pos >= len(buf) || buf[pos]&0x80 == 0 {
			return FacilityHeader{}, nil, false
		}
		si := buf[pos] &^ 0x80
		h.ServiceIndicator = &si
		pos++
	}

	if h.ProtocolProfile == ProfileExtensions {
		ext := &ExtensionHeader{}
		if v, n, ok := decodeExtOctet(buf[pos:], extTagNFE); ok {
			ext.NFE = &v
			pos += n
		}
		if v, n, ok := decodeExtOctet(buf[pos:], extTagNPP); ok {
			ext.NPP = &v
			pos += n
		}
		if v, n, ok := decodeExtOctet(buf[pos:], extTagInterpretation); ok {
			ext.Interpretation = &v
			pos += n
		}
		h.Ext = ext
	}

	return h, buf[pos:], true
}

// decodeExtOctet reads one {tag, 1, value} extension sub-component if
// present at the front of buf, reporting (0, 0, false) if buf doesn't
// start with wantTag (the sub-component is simply absent, not an error).
func decodeExtOctet(buf []byte, wantTag byte) (value uint8, consumed int, ok bool) {
	if len(buf) < 3 || buf[0] != wantTag {
		return 0, 0, false
	}
	if buf[1] != 1 {
		return 0, 0, false
	}
	return buf[2], 3, true
}
