package q921

import (
	"bytes"
	"testing"
	"time"

	"github.com/hhorai/libpri/q931bridge"
	"github.com/hhorai/libpri/sched"
)

// linkHarness captures everything a link pushes across its boundaries.
type linkHarness struct {
	pool      *sched.Pool
	link      *Link
	sent      []Header
	sentBody  [][]byte
	delivered [][]byte
	events    []q931bridge.Event
	now       time.Time
}

func newHarness(t *testing.T, network bool) *linkHarness {
	t.Helper()
	h := &linkHarness{pool: sched.NewPool(), now: time.Unix(0, 0)}
	hooks := Hooks{
		Transmit: func(frame []byte) {
			hdr, ok := DecodeHeader(frame)
			if !ok {
				t.Fatalf("link transmitted malformed frame %x", frame)
			}
			h.sent = append(h.sent, hdr)
			h.sentBody = append(h.sentBody, hdr.Payload(frame))
		},
		Deliver: func(payload []byte) {
			h.delivered = append(h.delivered, append([]byte{}, payload...))
		},
		PostEvent: func(ev q931bridge.Event) {
			h.events = append(h.events, ev)
		},
	}
	h.link = New(h.pool, SAPICallControl, TEIPRI, network, true, Timers{}, PersistenceDefault, hooks)
	h.link.Tick(h.now)
	return h
}

func (h *linkHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.link.Tick(h.now)
	h.pool.RunReady(h.now, nil)
}

func (h *linkHarness) reset() {
	h.sent = nil
	h.sentBody = nil
	h.delivered = nil
	h.events = nil
}

// establish drives the link to MULTI_FRAME_ESTABLISHED as the
// initiator: Establish sends SABME, peer answers UA F=1.
func (h *linkHarness) establish(t *testing.T) {
	t.Helper()
	h.link.Establish()
	if len(h.sent) != 1 || h.sent[0].Type != FrameSABME || !h.sent[0].PF {
		t.Fatalf("expected SABME P=1, sent %+v", h.sent)
	}
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerResponseCR(h.link), Type: FrameUA, PF: true}, nil)
	if h.link.State() != StateMultiFrameEstablished {
		t.Fatalf("expected MULTI_FRAME_ESTABLISHED, got %v", h.link.State())
	}
	h.reset()
}

// peerCommandCR/peerResponseCR compute the wire C/R bit the remote end
// would put on its frames.
func peerCommandCR(l *Link) bool  { return !l.Network }
func peerResponseCR(l *Link) bool { return l.Network }

func TestEstablishmentResponderSide(t *testing.T) {
	h := newHarness(t, false) // CPE answering a network SABME
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameSABME, PF: true}, nil)

	if len(h.sent) != 1 || h.sent[0].Type != FrameUA || !h.sent[0].PF {
		t.Fatalf("expected UA F=1, sent %+v", h.sent)
	}
	if h.link.State() != StateMultiFrameEstablished {
		t.Errorf("expected MULTI_FRAME_ESTABLISHED, got %v", h.link.State())
	}
	if h.link.VA() != 0 || h.link.VS() != 0 || h.link.VR() != 0 {
		t.Errorf("expected V(A)=V(S)=V(R)=0, got %d %d %d", h.link.VA(), h.link.VS(), h.link.VR())
	}
	if len(h.events) != 1 || h.events[0].Kind != q931bridge.DLEstablishIndication {
		t.Errorf("expected DL-ESTABLISH indication, got %+v", h.events)
	}
	if h.link.t203 == 0 || h.link.t200 != 0 {
		t.Errorf("expected T203 running and T200 stopped")
	}
}

func TestEstablishmentInitiatorGetsConfirm(t *testing.T) {
	h := newHarness(t, true)
	h.link.Establish()
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerResponseCR(h.link), Type: FrameUA, PF: true}, nil)
	found := false
	for _, ev := range h.events {
		if ev.Kind == q931bridge.DLEstablishConfirm {
			found = true
		}
	}
	if !found {
		t.Errorf("expected DL-ESTABLISH confirm, got %+v", h.events)
	}
}

func TestIFrameRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	out := []byte{0x08, 0x01, 0x01, 0x05, 0x04, 0x03, 0x80, 0x90, 0xa3, 0x18, 0x01, 0x89}
	h.link.SendUp(out)
	if len(h.sent) != 1 || h.sent[0].Type != FrameI || h.sent[0].NS != 0 || h.sent[0].NR != 0 || h.sent[0].PF {
		t.Fatalf("expected I N(S)=0 N(R)=0 P=0, sent %+v", h.sent)
	}
	if !bytes.Equal(h.sentBody[0], out) {
		t.Errorf("payload mismatch")
	}
	if h.link.t200 == 0 || h.link.t203 != 0 {
		t.Errorf("expected T200 running after I-frame send")
	}
	h.reset()

	in := []byte{0x08, 0x01, 0x81, 0x07, 0x04, 0x03, 0x80, 0x90, 0xa3}
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameI, NS: 0, NR: 1}, in)

	if h.link.VA() != 1 || h.link.VR() != 1 || h.link.VS() != 1 {
		t.Errorf("expected V(A)=1 V(R)=1 V(S)=1, got %d %d %d", h.link.VA(), h.link.VR(), h.link.VS())
	}
	if len(h.delivered) != 1 || !bytes.Equal(h.delivered[0], in) {
		t.Errorf("expected exactly one upward delivery of the peer payload")
	}
	if h.link.t200 != 0 || h.link.t203 == 0 {
		t.Errorf("expected T200 stopped and T203 running after full acknowledgment")
	}
}

func TestREJRetransmitsInOrder(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.SendUp([]byte{0x01})
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerResponseCR(h.link), Type: FrameRR, NR: 1}, nil)
	h.reset()

	h.link.SendUp([]byte{0x02})
	h.link.SendUp([]byte{0x03})
	if h.link.VS() != 3 {
		t.Fatalf("expected V(S)=3, got %d", h.link.VS())
	}
	h.reset()

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameREJ, NR: 1}, nil)

	if h.link.VA() != 1 {
		t.Errorf("expected V(A)=1 unchanged, got %d", h.link.VA())
	}
	if h.link.VS() != 3 {
		t.Errorf("expected V(S)=3 after retransmission, got %d", h.link.VS())
	}
	if len(h.sent) != 2 || h.sent[0].Type != FrameI || h.sent[0].NS != 1 || h.sent[1].NS != 2 {
		t.Fatalf("expected retransmission of N(S)=1,2 in order, sent %+v", h.sent)
	}
	if h.link.t200 == 0 {
		t.Errorf("expected T200 running after retransmission")
	}
}

func TestT200ExhaustionAwaitingEstablishment(t *testing.T) {
	h := newHarness(t, true)
	h.link.SendUp([]byte{0x08, 0x01, 0x01, 0x05})

	sabmes := 0
	for _, s := range h.sent {
		if s.Type == FrameSABME {
			sabmes++
		}
	}
	if sabmes != 1 {
		t.Fatalf("expected initial SABME, sent %+v", h.sent)
	}

	h.advance(1000 * time.Millisecond) // retry 1
	h.advance(1000 * time.Millisecond) // retry 2
	sabmes = 0
	for _, s := range h.sent {
		if s.Type == FrameSABME {
			sabmes++
		}
	}
	if sabmes != 3 {
		t.Errorf("expected 3 SABMEs by t=2000, got %d", sabmes)
	}

	h.advance(1000 * time.Millisecond) // N200 reached

	if e, ok := h.link.TakePendingMDLError(); !ok || e != MDLErrorG {
		t.Errorf("expected MDL-ERROR G, got %c ok=%v", e, ok)
	}
	if h.link.State() != StateTEIAssigned {
		t.Errorf("expected TEI_ASSIGNED, got %v", h.link.State())
	}
	if len(h.link.txq) != 0 {
		t.Errorf("expected transmit queue discarded")
	}
	found := false
	for _, ev := range h.events {
		if ev.Kind == q931bridge.DLReleaseIndication {
			found = true
		}
	}
	if !found {
		t.Errorf("expected DL-RELEASE indication, got %+v", h.events)
	}
}

func TestT203IdleEnquiryAndRecovery(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.advance(10000 * time.Millisecond)
	if h.link.State() != StateTimerRecovery {
		t.Fatalf("expected TIMER_RECOVERY after T203, got %v", h.link.State())
	}
	if len(h.sent) != 1 || h.sent[0].Type != FrameRR || !h.sent[0].PF {
		t.Fatalf("expected RR enquiry P=1, sent %+v", h.sent)
	}

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerResponseCR(h.link), Type: FrameRR, NR: 0, PF: true}, nil)
	if h.link.State() != StateMultiFrameEstablished {
		t.Errorf("expected MULTI_FRAME_ESTABLISHED after enquiry response, got %v", h.link.State())
	}
	if h.link.t200 != 0 || h.link.t203 == 0 {
		t.Errorf("expected T200 stopped, T203 running")
	}
}

func TestRNRBlocksSendUntilClear(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameRNR, NR: 0}, nil)
	h.reset()

	h.link.SendUp([]byte{0x42})
	if len(h.sent) != 0 {
		t.Fatalf("expected peer-busy to block transmission, sent %+v", h.sent)
	}

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameRR, NR: 0}, nil)
	if len(h.sent) != 1 || h.sent[0].Type != FrameI {
		t.Errorf("expected blocked I-frame to flush after RR, sent %+v", h.sent)
	}
}

func TestOwnReceiverBusyAnswersPollsWithRNR(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.SetReceiverBusy(true)
	if len(h.sent) != 1 || h.sent[0].Type != FrameRNR {
		t.Fatalf("expected RNR on entering busy, sent %+v", h.sent)
	}
	h.reset()

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameRR, NR: 0, PF: true}, nil)
	if len(h.sent) != 1 || h.sent[0].Type != FrameRNR || !h.sent[0].PF {
		t.Errorf("expected RNR F=1 poll answer while busy, sent %+v", h.sent)
	}
	h.reset()

	h.link.SetReceiverBusy(false)
	if len(h.sent) != 1 || h.sent[0].Type != FrameRR {
		t.Errorf("expected RR on leaving busy, sent %+v", h.sent)
	}
}

func TestWindowFullStopsSending(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	for i := 0; i < 10; i++ {
		h.link.SendUp([]byte{byte(i)})
	}
	iframes := 0
	for _, s := range h.sent {
		if s.Type == FrameI {
			iframes++
		}
	}
	if iframes != h.link.Timers.K {
		t.Errorf("expected exactly K=%d I-frames in flight, got %d", h.link.Timers.K, iframes)
	}
}

func TestInvalidNRReestablishes(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	// N(R)=5 acknowledges frames never sent.
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameRR, NR: 5}, nil)

	if e, ok := h.link.TakePendingMDLError(); !ok || e != MDLErrorJ {
		t.Errorf("expected MDL-ERROR J, got %c ok=%v", e, ok)
	}
	if h.link.State() != StateAwaitingEstablishment {
		t.Errorf("expected re-establishment, got %v", h.link.State())
	}
}

func TestOutOfSequenceIFrameSendsREJOnce(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameI, NS: 2, NR: 0}, []byte{0x01})
	if len(h.sent) != 1 || h.sent[0].Type != FrameREJ {
		t.Fatalf("expected REJ for out-of-sequence I-frame, sent %+v", h.sent)
	}
	if len(h.delivered) != 0 {
		t.Errorf("expected no upward delivery")
	}
	h.reset()

	// While the reject exception stands, further bad frames only answer
	// polls.
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameI, NS: 3, NR: 0}, []byte{0x02})
	for _, s := range h.sent {
		if s.Type == FrameREJ {
			t.Errorf("expected no second REJ, sent %+v", h.sent)
		}
	}
}

func TestDISCTearsDownAndReportsRelease(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerCommandCR(h.link), Type: FrameDISC, PF: true}, nil)

	if len(h.sent) != 1 || h.sent[0].Type != FrameUA || !h.sent[0].PF {
		t.Fatalf("expected UA F=1, sent %+v", h.sent)
	}
	if h.link.State() != StateTEIAssigned {
		t.Errorf("expected TEI_ASSIGNED, got %v", h.link.State())
	}
	if len(h.events) != 1 || h.events[0].Kind != q931bridge.DLReleaseIndication {
		t.Errorf("expected DL-RELEASE indication, got %+v", h.events)
	}
}

func TestFRMRReestablishes(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerResponseCR(h.link), Type: FrameFRMR, PF: true}, nil)

	if e, ok := h.link.TakePendingMDLError(); !ok || e != MDLErrorK {
		t.Errorf("expected MDL-ERROR K, got %c ok=%v", e, ok)
	}
	if h.link.State() != StateAwaitingEstablishment {
		t.Errorf("expected AWAITING_ESTABLISHMENT, got %v", h.link.State())
	}
	if len(h.sent) == 0 || h.sent[len(h.sent)-1].Type != FrameSABME {
		t.Errorf("expected SABME, sent %+v", h.sent)
	}
}

func TestReleaseSendsDISCAndConfirms(t *testing.T) {
	h := newHarness(t, true)
	h.establish(t)

	h.link.Release()
	if len(h.sent) != 1 || h.sent[0].Type != FrameDISC || !h.sent[0].PF {
		t.Fatalf("expected DISC P=1, sent %+v", h.sent)
	}
	h.link.Receive(Header{SAPI: 0, TEI: 0, CR: peerResponseCR(h.link), Type: FrameUA, PF: true}, nil)
	if h.link.State() != StateTEIAssigned {
		t.Errorf("expected TEI_ASSIGNED, got %v", h.link.State())
	}
	found := false
	for _, ev := range h.events {
		if ev.Kind == q931bridge.DLReleaseConfirm {
			found = true
		}
	}
	if !found {
		t.Errorf("expected DL-RELEASE confirm, got %+v", h.events)
	}
}
