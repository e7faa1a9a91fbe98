// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rose

import "github.com/hhorai/libpri/ber"

// ChargeKind selects the AOCDChargingUnit/AOCEChargingUnit CHOICE.
type ChargeKind int

const (
	ChargeNotAvailable ChargeKind = iota
	ChargeFreeOfCharge
	ChargeSpecific
)

// RecordedUnits is one entry of the recorded-units list: either a unit
// count or "not available".
type RecordedUnits struct {
	NumberOfUnits int32
	NotAvailable  bool
}

// AOCChargingUnitArg is the argument of the ETSI AOCDChargingUnit and
// AOCEChargingUnit operations:
//
//	CHOICE {
//	    chargeNotAvailable      NULL,
//	    freeOfCharge            [1] NULL,
//	    specificChargingUnits   SEQUENCE {
//	        recordedUnitsList   [1] SEQUENCE OF SEQUENCE { units CHOICE },
//	        typeOfChargingInfo  [2] ENUMERATED,
//	        billingID           [3] ENUMERATED OPTIONAL } }
type AOCChargingUnitArg struct {
	Kind          ChargeKind
	RecordedUnits []RecordedUnits
	TypeOfCharge  int32 // sub-total(0) or total(1)
	BillingID     int32
	HasBillingID  bool
}

var (
	aocFreeOfChargeTag = ber.MakeTag(ber.ClassContext, 1)
	aocUnitsListTag    = ber.MakeTag(ber.ClassContext|ber.ConstructedFlag, 1)
	aocTypeOfChargeTag = ber.MakeTag(ber.ClassContext, 2)
	aocBillingIDTag    = ber.MakeTag(ber.ClassContext, 3)
)

func encodeAOCChargingUnitArg(c *ber.Cursor, arg interface{}) bool {
	a, ok := arg.(AOCChargingUnitArg)
	if !ok {
		return false
	}
	switch a.Kind {
	case ChargeNotAvailable:
		return c.EncodeNull(universalNull)
	case ChargeFreeOfCharge:
		return c.EncodeNull(aocFreeOfChargeTag)
	}

	lenPos, ok := c.BeginConstructed(universalSequence, ber.LenFormU8)
	if !ok {
		return false
	}
	listPos, ok := c.BeginConstructed(aocUnitsListTag, ber.LenFormShort)
	if !ok {
		return false
	}
	for _, u := range a.RecordedUnits {
		unitPos, ok := c.BeginConstructed(universalSequence, ber.LenFormShort)
		if !ok {
			return false
		}
		if u.NotAvailable {
			if !c.EncodeNull(universalNull) {
				return false
			}
		} else if !c.EncodeInteger(universalInteger, u.NumberOfUnits) {
			return false
		}
		if !c.EndConstructed(unitPos) {
			return false
		}
	}
	if !c.EndConstructed(listPos) {
		return false
	}
	if !c.EncodeInteger(aocTypeOfChargeTag, a.TypeOfCharge) {
		return false
	}
	if a.HasBillingID {
		if !c.EncodeInteger(aocBillingIDTag, a.BillingID) {
			return false
		}
	}
	return c.EndConstructed(lenPos)
}

func decodeAOCChargingUnitArg(c *ber.Cursor) (arg interface{}, ok bool) {
	tag, ok := c.DecodeTag()
	if !ok {
		return nil, false
	}
	switch tag {
	case universalNull:
		if !c.DecodeNull() {
			return nil, false
		}
		return AOCChargingUnitArg{Kind: ChargeNotAvailable}, true
	case aocFreeOfChargeTag:
		if !c.DecodeNull() {
			return nil, false
		}
		return AOCChargingUnitArg{Kind: ChargeFreeOfCharge}, true
	case universalSequence:
	default:
		return nil, false
	}

	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return nil, false
	}
	end := c.Pos + length
	a := AOCChargingUnitArg{Kind: ChargeSpecific}

	if t, ok := c.DecodeTag(); !ok || t != aocUnitsListTag {
		return nil, false
	}
	listLen, ok := c.DecodeLength()
	if !ok || listLen < 0 {
		return nil, false
	}
	listEnd := c.Pos + listLen
	for c.Pos < listEnd {
		if t, ok := c.DecodeTag(); !ok || t != universalSequence {
			return nil, false
		}
		unitLen, ok := c.DecodeLength()
		if !ok || unitLen < 0 {
			return nil, false
		}
		unitEnd := c.Pos + unitLen
		t, ok := c.DecodeTag()
		if !ok {
			return nil, false
		}
		var u RecordedUnits
		switch t {
		case universalNull:
			if !c.DecodeNull() {
				return nil, false
			}
			u.NotAvailable = true
		case universalInteger:
			u.NumberOfUnits, ok = c.DecodeInteger()
			if !ok {
				return nil, false
			}
		default:
			return nil, false
		}
		// Optional recordedTypeOfUnits is skipped.
		if c.Pos > unitEnd {
			return nil, false
		}
		c.Pos = unitEnd
		a.RecordedUnits = append(a.RecordedUnits, u)
	}

	if t, ok := c.DecodeTag(); !ok || t != aocTypeOfChargeTag {
		return nil, false
	}
	a.TypeOfCharge, ok = c.DecodeInteger()
	if !ok {
		return nil, false
	}
	if c.Pos < end {
		if t, ok := c.DecodeTag(); !ok || t != aocBillingIDTag {
			return nil, false
		}
		a.BillingID, ok = c.DecodeInteger()
		if !ok {
			return nil, false
		}
		a.HasBillingID = true
	}
	c.Pos = end
	return a, true
}
