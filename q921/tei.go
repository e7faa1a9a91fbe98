// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package q921

// TEIMgmtMsgType enumerates the Q.921 TEI management message types
// (spec.md §6 "TEI management frames").
type TEIMgmtMsgType uint8

const (
	TEIRequest       TEIMgmtMsgType = 1
	TEIAssigned      TEIMgmtMsgType = 2
	TEIDenied        TEIMgmtMsgType = 3
	TEICheckRequest  TEIMgmtMsgType = 4
	TEICheckResponse TEIMgmtMsgType = 5
	TEIRemove        TEIMgmtMsgType = 6
	TEIVerify        TEIMgmtMsgType = 7
)

func (m TEIMgmtMsgType) String() string {
	switch m {
	case TEIRequest:
		return "ID_REQUEST"
	case TEIAssigned:
		return "ID_ASSIGNED"
	case TEIDenied:
		return "ID_DENIED"
	case TEICheckRequest:
		return "ID_CHECK_REQUEST"
	case TEICheckResponse:
		return "ID_CHECK_RESPONSE"
	case TEIRemove:
		return "ID_REMOVE"
	case TEIVerify:
		return "ID_VERIFY"
	default:
		return "unknown"
	}
}

const teiMgmtEntity = 0x0f

// TEIMgmtFrame is the decoded five-octet SAPI-63 UI payload (spec.md §6).
type TEIMgmtFrame struct {
	Ri      uint16
	MsgType TEIMgmtMsgType
	TEI     uint8 // Ai >> 1; TEIGroup means "all"/"any" depending on message
}

// DecodeTEIMgmt parses a layer-2-management UI payload.
func DecodeTEIMgmt(payload []byte) (f TEIMgmtFrame, ok bool) {
	if len(payload) < 5 || payload[0] != teiMgmtEntity {
		return TEIMgmtFrame{}, false
	}
	ri := uint16(payload[1])<<8 | uint16(payload[2])
	mt := TEIMgmtMsgType(payload[3])
	ai := payload[4]
	return TEIMgmtFrame{Ri: ri, MsgType: mt, TEI: ai >> 1}, true
}

// EncodeTEIMgmt emits the five-octet management-entity payload for f.
func EncodeTEIMgmt(f TEIMgmtFrame) []byte {
	ai := (f.TEI << 1) | 0x01 // E bit always set for a single TEI value
	return []byte{teiMgmtEntity, byte(f.Ri >> 8), byte(f.Ri), byte(f.MsgType), ai}
}

// TEIPool is the NT-side bitmap of dynamically assignable TEIs
// (spec.md §4.4 "PTMP TEI management", NT side). Liveness tracking for
// the reclamation poll lives with the controller, which owns the poll
// cycle; the pool only answers allocation questions.
type TEIPool struct {
	used [TEIAutoLast - TEIAutoFirst + 1]bool
}

func teiIndex(tei uint8) (int, bool) {
	if int(tei) < TEIAutoFirst || int(tei) > TEIAutoLast {
		return 0, false
	}
	return int(tei) - TEIAutoFirst, true
}

// Alloc reserves the lowest unused TEI in [TEIAutoFirst, TEIAutoLast].
func (p *TEIPool) Alloc() (tei uint8, ok bool) {
	for i, u := range p.used {
		if !u {
			p.used[i] = true
			return uint8(TEIAutoFirst + i), true
		}
	}
	return 0, false
}

// Free releases tei back to the pool.
func (p *TEIPool) Free(tei uint8) {
	if i, ok := teiIndex(tei); ok {
		p.used[i] = false
	}
}

// Full reports whether every TEI in the range is currently allocated.
func (p *TEIPool) Full() bool {
	for _, u := range p.used {
		if !u {
			return false
		}
	}
	return true
}
