// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package q921 implements the Q.921 LAPD data-link layer: per-(SAPI,TEI)
// link state machines, frame header encode/decode, and PTMP TEI
// management (spec.md §4.4).
package q921

import "fmt"

// TEI reserved values (spec.md GLOSSARY).
const (
	TEIPRI        = 0   // PRI point-to-point
	TEIAutoFirst  = 64  // first dynamically assignable TEI
	TEIAutoLast   = 126 // last dynamically assignable TEI
	TEIGroup      = 127 // PTMP broadcast
)

// SAPI values.
const (
	SAPICallControl = 0
	SAPILayer2Mgmt  = 63
)

// FrameType enumerates the Q.921 frame types this library exchanges.
type FrameType int

const (
	FrameI FrameType = iota
	FrameRR
	FrameRNR
	FrameREJ
	FrameSABME
	FrameUA
	FrameDISC
	FrameDM
	FrameFRMR
	FrameUI
)

func (f FrameType) String() string {
	switch f {
	case FrameI:
		return "I"
	case FrameRR:
		return "RR"
	case FrameRNR:
		return "RNR"
	case FrameREJ:
		return "REJ"
	case FrameSABME:
		return "SABME"
	case FrameUA:
		return "UA"
	case FrameDISC:
		return "DISC"
	case FrameDM:
		return "DM"
	case FrameFRMR:
		return "FRMR"
	case FrameUI:
		return "UI"
	default:
		return fmt.Sprintf("frametype(%d)", int(f))
	}
}

// Header is the decoded Q.921 address+control header (spec.md §6).
type Header struct {
	SAPI    uint8
	TEI     uint8
	CR      bool // command/response bit as transmitted on the wire
	Type    FrameType
	NS      uint8 // valid for FrameI
	NR      uint8 // valid for FrameI, FrameRR, FrameRNR, FrameREJ
	PF      bool
	headLen int // header octets consumed (2 address + 1 or 2 control)
}

// unnumbered M3|P/F|M2|ft identifier bytes with P/F masked out (ft=11 in
// the low two bits).
const (
	ctrlSABME = 0x6f
	ctrlUA    = 0x63
	ctrlDISC  = 0x43
	ctrlDM    = 0x0f
	ctrlFRMR  = 0x87
	ctrlUI    = 0x03
)

// DecodeHeader parses the address and control octets at the front of buf.
// It does not validate the trailing FCS (owned by the driver, spec.md §6).
func DecodeHeader(buf []byte) (hdr Header, ok bool) {
	if len(buf) < 3 {
		return Header{}, false
	}
	a1 := buf[0]
	a2 := buf[1]
	if a1&0x01 != 0 || a2&0x01 != 1 {
		// EA1 must be 0 (more address octets follow), EA2 must be 1.
		return Header{}, false
	}
	hdr.SAPI = a1 >> 2
	hdr.CR = a1&0x02 != 0
	hdr.TEI = a2 >> 1

	ctrl := buf[2]
	switch {
	case ctrl&0x01 == 0:
		// I-frame: N(S) | 0, then N(R) | P/F.
		if len(buf) < 4 {
			return Header{}, false
		}
		hdr.Type = FrameI
		hdr.NS = ctrl >> 1
		hdr.NR = buf[3] >> 1
		hdr.PF = buf[3]&0x01 != 0
		hdr.headLen = 4
	case ctrl&0x03 == 0x01:
		// S-frame: 0000 | ss | 01, then N(R) | P/F.
		if len(buf) < 4 {
			return Header{}, false
		}
		switch (ctrl >> 2) & 0x03 {
		case 0:
			hdr.Type = FrameRR
		case 1:
			hdr.Type = FrameRNR
		case 2:
			hdr.Type = FrameREJ
		default:
			return Header{}, false
		}
		hdr.NR = buf[3] >> 1
		hdr.PF = buf[3]&0x01 != 0
		hdr.headLen = 4
	case ctrl&0x03 == 0x03:
		// U-frame: single control octet, M3|P/F|M2|11.
		hdr.PF = ctrl&0x10 != 0
		m := ctrl &^ 0x10
		switch m {
		case ctrlSABME:
			hdr.Type = FrameSABME
		case ctrlUA:
			hdr.Type = FrameUA
		case ctrlDISC:
			hdr.Type = FrameDISC
		case ctrlDM:
			hdr.Type = FrameDM
		case ctrlFRMR:
			hdr.Type = FrameFRMR
		case ctrlUI:
			hdr.Type = FrameUI
		default:
			return Header{}, false
		}
		hdr.headLen = 3
	default:
		return Header{}, false
	}
	return hdr, true
}

// Payload returns the bytes of buf following the header this Header was
// decoded from.
func (h Header) Payload(buf []byte) []byte {
	if h.headLen == 0 || h.headLen > len(buf) {
		return nil
	}
	return buf[h.headLen:]
}

// EncodeHeader emits the address and control octets for hdr, followed by
// payload. The caller's I/O driver appends the two-octet FCS on write
// (spec.md §6); this library never touches it.
func EncodeHeader(hdr Header, payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	a1 := hdr.SAPI << 2
	if hdr.CR {
		a1 |= 0x02
	}
	out = append(out, a1)
	out = append(out, (hdr.TEI<<1)|0x01)

	switch hdr.Type {
	case FrameI:
		out = append(out, hdr.NS<<1)
		nr := hdr.NR << 1
		if hdr.PF {
			nr |= 0x01
		}
		out = append(out, nr)
	case FrameRR, FrameRNR, FrameREJ:
		var ss byte
		switch hdr.Type {
		case FrameRR:
			ss = 0
		case FrameRNR:
			ss = 1
		case FrameREJ:
			ss = 2
		}
		out = append(out, (ss<<2)|0x01)
		nr := hdr.NR << 1
		if hdr.PF {
			nr |= 0x01
		}
		out = append(out, nr)
	case FrameSABME, FrameUA, FrameDISC, FrameDM, FrameFRMR, FrameUI:
		var m byte
		switch hdr.Type {
		case FrameSABME:
			m = ctrlSABME
		case FrameUA:
			m = ctrlUA
		case FrameDISC:
			m = ctrlDISC
		case FrameDM:
			m = ctrlDM
		case FrameFRMR:
			m = ctrlFRMR
		case FrameUI:
			m = ctrlUI
		}
		if hdr.PF {
			m |= 0x10
		}
		out = append(out, m)
	}
	out = append(out, payload...)
	return out
}
