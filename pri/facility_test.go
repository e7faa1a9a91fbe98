package pri

import (
	"testing"

	"github.com/hhorai/libpri/rose"
)

func TestFacilityRoundTripQSIG(t *testing.T) {
	c := NewController(Config{SwitchType: SwitchQSIG, PTP: true}, quietLog())

	msg := rose.Message{
		Kind:        rose.KindInvoke,
		InvokeID:    c.NextInvokeID(),
		HasInvokeID: true,
		Op:          rose.OpCallingName,
		Arg:         rose.NameArg{Name: "Alice", Presentation: rose.PresentationAllowed},
	}
	contents, ok := c.EncodeFacility(msg)
	if !ok {
		t.Fatalf("encode failed")
	}
	if contents[0] != 0x80|uint8(rose.ProfileROSE) {
		t.Errorf("expected ROSE protocol profile, got %02x", contents[0])
	}

	hdr, msgs, ok := c.DecodeFacility(contents)
	if !ok || len(msgs) != 1 {
		t.Fatalf("decode: %d components ok=%v", len(msgs), ok)
	}
	if hdr.ProtocolProfile != rose.ProfileROSE || hdr.ServiceIndicator != nil {
		t.Errorf("header: %+v", hdr)
	}
	if msgs[0].Op != rose.OpCallingName || msgs[0].InvokeID != msg.InvokeID {
		t.Errorf("component: %+v", msgs[0])
	}
}

func TestFacilityDMS100ServiceIndicator(t *testing.T) {
	c := NewController(Config{SwitchType: SwitchDMS100, PTP: true}, quietLog())

	msg := rose.Message{
		Kind:        rose.KindResult,
		InvokeID:    1,
		HasInvokeID: true,
		Op:          rose.OpRLTOperationInd,
		Arg:         rose.RLTOperationIndRes{CallID: 77},
	}
	contents, ok := c.EncodeFacility(msg)
	if !ok {
		t.Fatalf("encode failed")
	}
	hdr, msgs, ok := c.DecodeFacility(contents)
	if !ok || len(msgs) != 1 {
		t.Fatalf("decode: %d components ok=%v", len(msgs), ok)
	}
	if hdr.ServiceIndicator == nil || *hdr.ServiceIndicator != rose.DMS100ServiceIDRLT {
		t.Errorf("expected RLT service indicator, got %+v", hdr.ServiceIndicator)
	}
	if res, ok := msgs[0].Arg.(rose.RLTOperationIndRes); !ok || res.CallID != 77 {
		t.Errorf("argument: %+v", msgs[0].Arg)
	}
}

func TestInvokeIDAndCallRefCounters(t *testing.T) {
	c := NewController(Config{SwitchType: SwitchQSIG, PTP: true}, quietLog())

	if a, b := c.NextInvokeID(), c.NextInvokeID(); a == b {
		t.Errorf("invoke ids must advance, got %d twice", a)
	}
	seen := map[uint16]bool{}
	for i := 0; i < 100; i++ {
		ref := c.NewCallRef()
		if ref == 0 {
			t.Fatalf("call reference 0 is reserved for the dummy call")
		}
		if seen[ref] {
			t.Fatalf("call reference %d reused immediately", ref)
		}
		seen[ref] = true
	}
}
