package rose

import (
	"bytes"
	"encoding/hex"
	"reflect"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex vector %q: %v", s, err)
	}
	return b
}

func roundTrip(t *testing.T, st SwitchType, msg Message) Message {
	t.Helper()
	buf, ok := Encode(make([]byte, 0, 256), st, msg)
	if !ok {
		t.Fatalf("encode failed for %+v", msg)
	}
	decoded, rest, ok := Decode(buf, st)
	if !ok {
		t.Fatalf("decode failed for %x", buf)
	}
	if len(rest) != 0 {
		t.Fatalf("decode left %d trailing octets", len(rest))
	}
	return decoded
}

// The CallingName scenario: QSIG switchtype, invoke id 7, name "Alice"
// with presentation allowed. The operation value is localValue 0 and
// the argument the implicit [0] primitive OCTET STRING.
func TestCallingNameInvokeVector(t *testing.T) {
	msg := Message{
		Kind:        KindInvoke,
		InvokeID:    7,
		HasInvokeID: true,
		Op:          OpCallingName,
		Arg:         NameArg{Name: "Alice", Presentation: PresentationAllowed},
	}
	buf, ok := Encode(make([]byte, 0, 64), SwitchQSIG, msg)
	if !ok {
		t.Fatalf("encode failed")
	}
	expect := mustHex(t, "a10d"+"020107"+"020100"+"8005416c696365")
	if !bytes.Equal(buf, expect) {
		t.Fatalf("encode: expect %x, actual %x", expect, buf)
	}

	decoded, _, ok := Decode(buf, SwitchQSIG)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.Kind != KindInvoke || decoded.InvokeID != 7 || decoded.Op != OpCallingName {
		t.Errorf("decode header: %+v", decoded)
	}
	name, ok := decoded.Arg.(NameArg)
	if !ok {
		t.Fatalf("argument type: %T", decoded.Arg)
	}
	if name.Name != "Alice" || name.Presentation != PresentationAllowed || name.CharSet != CharSetISO88591 {
		t.Errorf("argument: %+v", name)
	}
}

// The 2nd-edition globalValue encoding of the same operation is still
// accepted on decode.
func TestCallingNameOIDFormAccepted(t *testing.T) {
	in := mustHex(t, "a110"+"020107"+"06042b0c0900"+"8005416c696365")
	decoded, _, ok := Decode(in, SwitchQSIG)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.Op != OpCallingName {
		t.Errorf("expect OpCallingName, actual %v", decoded.Op)
	}
	if name := decoded.Arg.(NameArg); name.Name != "Alice" {
		t.Errorf("argument: %+v", name)
	}
}

func TestNameSetCharSetRoundTrip(t *testing.T) {
	msg := Message{
		Kind:        KindInvoke,
		InvokeID:    2,
		HasInvokeID: true,
		Op:          OpCalledName,
		Arg:         NameArg{Name: "Bob", CharSet: 3, Presentation: PresentationRestricted},
	}
	decoded := roundTrip(t, SwitchQSIG, msg)
	if !reflect.DeepEqual(decoded.Arg, msg.Arg) {
		t.Errorf("expect %+v, actual %+v", msg.Arg, decoded.Arg)
	}
}

// DMS-100 shares localValue 0 between RLT_OperationInd and Q.SIG
// CallingName; switchtype alone resolves it.
func TestDMS100LocalValueCollision(t *testing.T) {
	in := mustHex(t, "a106" + "020101" + "020100")
	decoded, _, ok := Decode(in, SwitchDMS100)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.Op != OpRLTOperationInd {
		t.Errorf("DMS-100: expect OpRLTOperationInd for localValue 0, actual %v", decoded.Op)
	}

	decoded, _, ok = Decode(in, SwitchNI2)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.Op != OpCallingName {
		t.Errorf("NI2: expect OpCallingName for localValue 0, actual %v", decoded.Op)
	}
}

func TestUnknownOperationSentinel(t *testing.T) {
	// localValue 99 exists in no table; arguments are left undecoded.
	in := mustHex(t, "a10a"+"020103"+"020163"+"80023132")
	decoded, rest, ok := Decode(in, SwitchQSIG)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.Op != OpUnknown {
		t.Errorf("expect OpUnknown, actual %v", decoded.Op)
	}
	if decoded.Arg != nil {
		t.Errorf("expect no argument decoding, actual %+v", decoded.Arg)
	}
	if len(rest) != 0 {
		t.Errorf("expect component fully consumed, %d octets left", len(rest))
	}
}

func TestResultWithArgumentsRoundTrip(t *testing.T) {
	msg := Message{
		Kind:        KindResult,
		InvokeID:    9,
		HasInvokeID: true,
		Op:          OpRLTOperationInd,
		Arg:         RLTOperationIndRes{CallID: 0x1234},
	}
	decoded := roundTrip(t, SwitchDMS100, msg)
	if decoded.Kind != KindResult || decoded.InvokeID != 9 || decoded.Op != OpRLTOperationInd {
		t.Errorf("header: %+v", decoded)
	}
	if !reflect.DeepEqual(decoded.Arg, msg.Arg) {
		t.Errorf("expect %+v, actual %+v", msg.Arg, decoded.Arg)
	}
}

func TestResultWithoutOperation(t *testing.T) {
	msg := Message{Kind: KindResult, InvokeID: 3, HasInvokeID: true}
	buf, ok := Encode(make([]byte, 0, 16), SwitchQSIG, msg)
	if !ok {
		t.Fatalf("encode failed")
	}
	if got := hex.EncodeToString(buf); got != "a203020103" {
		t.Errorf("expect a203020103, actual %s", got)
	}
	decoded, _, ok := Decode(buf, SwitchQSIG)
	if !ok || decoded.Op != OpUnknown {
		t.Errorf("decode: %+v ok=%v", decoded, ok)
	}
}

func TestErrorComponentRoundTrip(t *testing.T) {
	msg := Message{Kind: KindError, InvokeID: 4, HasInvokeID: true, ErrCode: ErrNotSubscribed}
	decoded := roundTrip(t, SwitchQSIG, msg)
	if decoded.Kind != KindError || decoded.ErrCode != ErrNotSubscribed || decoded.InvokeID != 4 {
		t.Errorf("decode: %+v", decoded)
	}
}

func TestRejectComponent(t *testing.T) {
	pattern := []struct {
		name string
		msg  Message
		ev   string
	}{
		{
			"with-invoke-id",
			Message{Kind: KindReject, InvokeID: 5, HasInvokeID: true,
				Problem: Problem{Category: ProblemInvoke, Code: 2}},
			"a406" + "020105" + "810102",
		},
		{
			"null-invoke-id",
			Message{Kind: KindReject,
				Problem: Problem{Category: ProblemGeneral, Code: 1}},
			"a405" + "0500" + "800101",
		},
	}

	for _, p := range pattern {
		buf, ok := Encode(make([]byte, 0, 32), SwitchQSIG, p.msg)
		if !ok {
			t.Errorf("%s: encode failed", p.name)
			continue
		}
		if got := hex.EncodeToString(buf); got != p.ev {
			t.Errorf("%s: expect %s, actual %s", p.name, p.ev, got)
			continue
		}
		decoded, _, ok := Decode(buf, SwitchQSIG)
		if !ok {
			t.Errorf("%s: decode failed", p.name)
			continue
		}
		if decoded.HasInvokeID != p.msg.HasInvokeID || decoded.Problem != p.msg.Problem {
			t.Errorf("%s: decode %+v", p.name, decoded)
		}
	}
}

func TestAOCChargingUnitRoundTrip(t *testing.T) {
	pattern := []struct {
		name string
		arg  AOCChargingUnitArg
	}{
		{"not-available", AOCChargingUnitArg{Kind: ChargeNotAvailable}},
		{"free-of-charge", AOCChargingUnitArg{Kind: ChargeFreeOfCharge}},
		{"specific", AOCChargingUnitArg{
			Kind:          ChargeSpecific,
			RecordedUnits: []RecordedUnits{{NumberOfUnits: 17}, {NotAvailable: true}},
			TypeOfCharge:  1,
			BillingID:     2,
			HasBillingID:  true,
		}},
	}

	for _, p := range pattern {
		msg := Message{Kind: KindInvoke, InvokeID: 11, HasInvokeID: true, Op: OpAOCDChargingUnit, Arg: p.arg}
		decoded := roundTrip(t, SwitchEuroISDNE1, msg)
		if !reflect.DeepEqual(decoded.Arg, msg.Arg) {
			t.Errorf("%s: expect %+v, actual %+v", p.name, msg.Arg, decoded.Arg)
		}
	}
}

func TestMWIActivateRoundTrip(t *testing.T) {
	msg := Message{
		Kind:        KindInvoke,
		InvokeID:    1,
		HasInvokeID: true,
		Op:          OpMWIActivate,
		Arg: MWIActivateArg{
			ReceivingUserNumber: PartyNumber{Plan: PlanPublic, TypeOfNumber: 2, Digits: "5551212"},
			BasicService:        1,
			MessageCount:        4,
			HasCount:            true,
		},
	}
	decoded := roundTrip(t, SwitchEuroISDNE1, msg)
	if decoded.Op != OpMWIActivate {
		t.Fatalf("expect OpMWIActivate, actual %v", decoded.Op)
	}
	if !reflect.DeepEqual(decoded.Arg, msg.Arg) {
		t.Errorf("expect %+v, actual %+v", msg.Arg, decoded.Arg)
	}
}

func TestCallReroutingRoundTrip(t *testing.T) {
	msg := Message{
		Kind:        KindInvoke,
		InvokeID:    6,
		HasInvokeID: true,
		Op:          OpCallRerouting,
		Arg: CallReroutingArg{
			Reason:        2,
			CalledAddress: PartyNumber{Plan: PlanUnknown, Digits: "12345"},
			Counter:       1,
			Q931ie:        Q931ie{Contents: []byte{0x04, 0x03, 0x80, 0x90, 0xa3}},
		},
	}
	decoded := roundTrip(t, SwitchEuroISDNE1, msg)
	if !reflect.DeepEqual(decoded.Arg, msg.Arg) {
		t.Errorf("expect %+v, actual %+v", msg.Arg, decoded.Arg)
	}
}

func TestCTCompleteRoundTrip(t *testing.T) {
	msg := Message{
		Kind:        KindInvoke,
		InvokeID:    8,
		HasInvokeID: true,
		Op:          OpCTComplete,
		Arg: CTCompleteArg{
			EndDesignation:    1,
			RedirectionNumber: PartyNumber{Plan: PlanPrivate, TypeOfNumber: 4, Digits: "2001"},
		},
	}
	decoded := roundTrip(t, SwitchQSIG, msg)
	if !reflect.DeepEqual(decoded.Arg, msg.Arg) {
		t.Errorf("expect %+v, actual %+v", msg.Arg, decoded.Arg)
	}
}

func TestLinkedIDRoundTrip(t *testing.T) {
	linked := int32(3)
	msg := Message{
		Kind:        KindInvoke,
		InvokeID:    12,
		HasInvokeID: true,
		LinkedID:    &linked,
		Op:          OpCTActive,
	}
	decoded := roundTrip(t, SwitchQSIG, msg)
	if decoded.LinkedID == nil || *decoded.LinkedID != 3 {
		t.Errorf("expect linked id 3, actual %+v", decoded.LinkedID)
	}
}

func TestDecodeConsumesOneComponentOnly(t *testing.T) {
	first, _ := Encode(make([]byte, 0, 64), SwitchQSIG, Message{
		Kind: KindInvoke, InvokeID: 1, HasInvokeID: true, Op: OpCTAbandon,
	})
	second, _ := Encode(make([]byte, 0, 64), SwitchQSIG, Message{
		Kind: KindError, InvokeID: 1, HasInvokeID: true, ErrCode: ErrRejectedByUser,
	})
	in := append(append([]byte{}, first...), second...)

	decoded, rest, ok := Decode(in, SwitchQSIG)
	if !ok || decoded.Kind != KindInvoke {
		t.Fatalf("first decode: %+v ok=%v", decoded, ok)
	}
	decoded, rest, ok = Decode(rest, SwitchQSIG)
	if !ok || decoded.Kind != KindError || decoded.ErrCode != ErrRejectedByUser {
		t.Fatalf("second decode: %+v ok=%v", decoded, ok)
	}
	if len(rest) != 0 {
		t.Errorf("expect both components consumed, %d octets left", len(rest))
	}
}

func TestFacilityHeaderRoundTrip(t *testing.T) {
	nfe := uint8(0)
	npp := uint8(0x12)
	interp := uint8(2)
	si := uint8(0x11)
	pattern := []struct {
		name   string
		hdr    FacilityHeader
		dms100 bool
	}{
		{"rose-only", FacilityHeader{ProtocolProfile: ProfileROSE}, false},
		{"dms100-service", FacilityHeader{ProtocolProfile: ProfileROSE, ServiceIndicator: &si}, true},
		{"extensions", FacilityHeader{
			ProtocolProfile: ProfileExtensions,
			Ext:             &ExtensionHeader{NFE: &nfe, NPP: &npp, Interpretation: &interp},
		}, false},
	}

	for _, p := range pattern {
		buf := EncodeFacilityHeader(p.hdr)
		got, rest, ok := DecodeFacilityHeader(buf, p.dms100)
		if !ok {
			t.Errorf("%s: decode failed", p.name)
			continue
		}
		if len(rest) != 0 {
			t.Errorf("%s: %d octets left", p.name, len(rest))
		}
		if !reflect.DeepEqual(got, p.hdr) {
			t.Errorf("%s: expect %+v, actual %+v", p.name, p.hdr, got)
		}
	}
}
