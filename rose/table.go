// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// opEntry is one row of a per-switchtype operation conversion table
// (spec.md §3 "Operation/Error conversion table"): a library code, an
// optional OID prefix (nil means localValue), the trailing sub-id or
// localValue, and the argument codec pair. A library code may appear
// more than once in a table; the first row wins on encode, so a
// decode-only alternate encoding (e.g. the older OID form of the Q.SIG
// name operations) is listed after the primary row.
type opEntry struct {
	Op            OpCode
	OIDPrefix     *ber.OID
	Local         int32
	TrailingSubID uint32
	Encode        func(c *ber.Cursor, arg interface{}) bool
	Decode        func(c *ber.Cursor) (arg interface{}, ok bool)
}

type errEntry struct {
	Err           ErrCode
	OIDPrefix     *ber.OID
	Local         int32
	TrailingSubID uint32
}

// ecmaISDNDomainOID is the ECMA private-isdn-signalling-domain arc
// {iso(1) identified-organization(3) icd-ecma(12)
// private-isdn-signalling-domain(9)}, first two sub-ids combined per
// X.690. The 2nd-edition Q.SIG name operations were published under it;
// current switches send localValue but we still accept the OID form.
var ecmaISDNDomainOID = &ber.OID{Values: []uint32{43, 12, 9}}

// etsiMWIOID is {ccitt(0) identified-organization(4) etsi(0) 745
// operations-and-errors(1)}.
var etsiMWIOID = &ber.OID{Values: []uint32{4, 0, 745, 1}}

// ni2OID is {iso(1) member-body(2) usa(840) ansi-t1(10005) operations(0)}.
var ni2OID = &ber.OID{Values: []uint32{42, 840, 10005, 0}}

var etsiOps = []opEntry{
	{Op: OpEctExecute, Local: 6},
	{Op: OpCallDeflection, Local: 13, Encode: encodeDeflectionArg, Decode: decodeDeflectionArg},
	{Op: OpCallRerouting, Local: 14, Encode: encodeReroutingArg, Decode: decodeReroutingArg},
	{Op: OpAOCDChargingUnit, Local: 34, Encode: encodeAOCChargingUnitArg, Decode: decodeAOCChargingUnitArg},
	{Op: OpAOCEChargingUnit, Local: 36, Encode: encodeAOCChargingUnitArg, Decode: decodeAOCChargingUnitArg},
	{Op: OpMWIActivate, OIDPrefix: etsiMWIOID, TrailingSubID: 1, Encode: encodeMWIActivateArg, Decode: decodeMWIActivateArg},
	{Op: OpMWIDeactivate, OIDPrefix: etsiMWIOID, TrailingSubID: 2, Encode: encodeMWIDeactivateArg, Decode: decodeMWIDeactivateArg},
	{Op: OpMWIIndicate, OIDPrefix: etsiMWIOID, TrailingSubID: 3, Encode: encodeMWIActivateArg, Decode: decodeMWIActivateArg},
}

var etsiErrs = []errEntry{
	{Err: ErrNotSubscribed, Local: 0},
	{Err: ErrNotAvailable, Local: 3},
	{Err: ErrInvalidServedUserNumber, Local: 6},
	{Err: ErrInvalidCallState, Local: 7},
	{Err: ErrResourceUnavailable, Local: 11},
	{Err: ErrInvalidDivertedToNumber, Local: 12},
	{Err: ErrSpecialServiceNumber, Local: 14},
	{Err: ErrNoChargingInfoAvailable, Local: 26},
}

// qsigOps: the name operations encode as localValue (4th edition); the
// OID rows accept the 2nd-edition globalValue encoding on decode.
var qsigOps = []opEntry{
	{Op: OpCallingName, Local: 0, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpCalledName, Local: 1, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpConnectedName, Local: 2, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpBusyName, Local: 3, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpCallingName, OIDPrefix: ecmaISDNDomainOID, TrailingSubID: 0, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpCalledName, OIDPrefix: ecmaISDNDomainOID, TrailingSubID: 1, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpConnectedName, OIDPrefix: ecmaISDNDomainOID, TrailingSubID: 2, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpBusyName, OIDPrefix: ecmaISDNDomainOID, TrailingSubID: 3, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpCTIdentify, Local: 7, Decode: decodeCTIdentifyArg},
	{Op: OpCTAbandon, Local: 8},
	{Op: OpCTInitiate, Local: 9, Encode: encodeCTInitiateArg, Decode: decodeCTInitiateArg},
	{Op: OpCTSetup, Local: 10, Encode: encodeCTInitiateArg, Decode: decodeCTInitiateArg},
	{Op: OpCTActive, Local: 11},
	{Op: OpCTComplete, Local: 12, Encode: encodeCTCompleteArg, Decode: decodeCTCompleteArg},
	{Op: OpCTUpdate, Local: 13, Encode: encodeCTCompleteArg, Decode: decodeCTCompleteArg},
}

var qsigErrs = []errEntry{
	{Err: ErrNotSubscribed, Local: 0},
	{Err: ErrRejectedByNetwork, Local: 1},
	{Err: ErrRejectedByUser, Local: 2},
	{Err: ErrNotAvailable, Local: 3},
	{Err: ErrInvalidCallState, Local: 7},
	{Err: ErrSupplementaryServiceInteractionNotAllowed, Local: 43},
}

// dms100Ops shares localValue space between the proprietary RLT
// operations (0x00, 0x01) and Q.SIG's CallingName (0); the collision is
// resolved by switchtype alone, per the open question recorded in
// spec.md §9. The RLT rows come first so a DMS-100 controller decodes
// localValue 0 as RLT_OperationInd; CalledName/ConnectedName/BusyName
// are omitted entirely because their localValues collide with RLT.
var dms100Ops = []opEntry{
	{Op: OpRLTOperationInd, Local: 0x00, Encode: encodeRLTOperationIndRes, Decode: decodeRLTOperationIndRes},
	{Op: OpRLTThirdParty, Local: 0x01, Encode: encodeRLTThirdPartyArg, Decode: decodeRLTThirdPartyArg},
	{Op: OpCallingName, OIDPrefix: ecmaISDNDomainOID, TrailingSubID: 0, Encode: encodeNameArg, Decode: decodeNameArg},
}

var dms100Errs = []errEntry{
	{Err: ErrRLTBridgeFail, Local: 0x10},
	{Err: ErrRLTCallIDNotFound, Local: 0x11},
	{Err: ErrRLTNotAllowed, Local: 0x12},
}

// ni2Ops cross-imports the Q.SIG name operations alongside the NI2
// OID-based operations (spec.md §4.3 "Per-switch selection").
var ni2Ops = []opEntry{
	{Op: OpInformationFollowing, OIDPrefix: ni2OID, TrailingSubID: 4},
	{Op: OpInitiateTransfer, OIDPrefix: ni2OID, TrailingSubID: 8, Encode: encodeInitiateTransferArg, Decode: decodeInitiateTransferArg},
	{Op: OpCallingName, Local: 0, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpCalledName, Local: 1, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpConnectedName, Local: 2, Encode: encodeNameArg, Decode: decodeNameArg},
	{Op: OpBusyName, Local: 3, Encode: encodeNameArg, Decode: decodeNameArg},
}

var ni2Errs = []errEntry{
	{Err: ErrNotSubscribed, Local: 0},
	{Err: ErrNotAvailable, Local: 3},
	{Err: ErrInvalidServedUserNumber, Local: 6},
}

func tablesFor(st SwitchType) ([]opEntry, []errEntry) {
	switch st {
	case SwitchEuroISDNE1, SwitchEuroISDNT1:
		return etsiOps, etsiErrs
	case SwitchQSIG:
		return qsigOps, qsigErrs
	case SwitchDMS100:
		return dms100Ops, dms100Errs
	case SwitchNI2, SwitchLucent5E, SwitchATT4ESS:
		return ni2Ops, ni2Errs
	default:
		return nil, nil
	}
}

func findOp(st SwitchType, op OpCode) *opEntry {
	ops, _ := tablesFor(st)
	for i := range ops {
		if ops[i].Op == op {
			return &ops[i]
		}
	}
	return nil
}

func findOpByLocal(st SwitchType, local int32) *opEntry {
	ops, _ := tablesFor(st)
	for i := range ops {
		if ops[i].OIDPrefix == nil && ops[i].Local == local {
			return &ops[i]
		}
	}
	return nil
}

// findOpByOID matches the trailing sub-identifier first, then the
// prefix, per spec.md §4.3's decode order.
func findOpByOID(st SwitchType, oid ber.OID) *opEntry {
	if len(oid.Values) == 0 {
		return nil
	}
	trailing := oid.Values[len(oid.Values)-1]
	prefix := oid.Values[:len(oid.Values)-1]
	ops, _ := tablesFor(st)
	for i := range ops {
		if ops[i].OIDPrefix == nil || ops[i].TrailingSubID != trailing {
			continue
		}
		if oidPrefixEqual(ops[i].OIDPrefix.Values, prefix) {
			return &ops[i]
		}
	}
	return nil
}

func findErr(st SwitchType, ec ErrCode) *errEntry {
	_, errs := tablesFor(st)
	for i := range errs {
		if errs[i].Err == ec {
			return &errs[i]
		}
	}
	return nil
}

func findErrByLocal(st SwitchType, local int32) *errEntry {
	_, errs := tablesFor(st)
	for i := range errs {
		if errs[i].OIDPrefix == nil && errs[i].Local == local {
			return &errs[i]
		}
	}
	return nil
}

func findErrByOID(st SwitchType, oid ber.OID) *errEntry {
	if len(oid.Values) == 0 {
		return nil
	}
	trailing := oid.Values[len(oid.Values)-1]
	prefix := oid.Values[:len(oid.Values)-1]
	_, errs := tablesFor(st)
	for i := range errs {
		if errs[i].OIDPrefix == nil || errs[i].TrailingSubID != trailing {
			continue
		}
		if oidPrefixEqual(errs[i].OIDPrefix.Values, prefix) {
			return &errs[i]
		}
	}
	return nil
}

func oidPrefixEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
