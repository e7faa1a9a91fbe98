// A scripted walk through the headline scenarios of the Q.921/ROSE
// stack: layer-2 establishment, I-frame exchange, REJ-driven
// retransmission, ROSE name encoding, indefinite-length BER, and T200
// exhaustion. Two controllers are wired back to back through in-memory
// frame queues standing in for the HDLC driver.
package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hhorai/libpri/ber"
	"github.com/hhorai/libpri/pri"
	"github.com/hhorai/libpri/q921"
	"github.com/hhorai/libpri/q931bridge"
	"github.com/hhorai/libpri/rose"
)

type testSession struct {
	nt  *pri.Controller
	cpe *pri.Controller

	toNT  [][]byte
	toCPE [][]byte

	now time.Time
}

func newTest() *testSession {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	entry := logrus.NewEntry(log)

	t := &testSession{now: time.Unix(0, 0)}
	t.nt = pri.NewController(pri.Config{SwitchType: pri.SwitchEuroISDNE1, Network: true, PTP: true}, entry)
	t.cpe = pri.NewController(pri.Config{SwitchType: pri.SwitchEuroISDNE1, PTP: true}, entry)

	t.nt.Write = func(frame []byte) (int, error) {
		fmt.Printf("NT  -> %s\n", hex.EncodeToString(frame))
		t.toCPE = append(t.toCPE, withFCS(frame))
		return len(frame), nil
	}
	t.cpe.Write = func(frame []byte) (int, error) {
		fmt.Printf("CPE -> %s\n", hex.EncodeToString(frame))
		t.toNT = append(t.toNT, withFCS(frame))
		return len(frame), nil
	}
	t.nt.Deliver = func(f q931bridge.Frame) {
		fmt.Printf("NT  <= q931 payload %s\n", hex.EncodeToString(f.Payload))
	}
	t.cpe.Deliver = func(f q931bridge.Frame) {
		fmt.Printf("CPE <= q931 payload %s\n", hex.EncodeToString(f.Payload))
	}
	return t
}

// withFCS plays the driver's role: frames arrive with the FCS attached.
func withFCS(frame []byte) []byte {
	return append(append([]byte{}, frame...), 0x00, 0x00)
}

// exchange shuttles queued frames between the two ends until both
// queues drain, printing any event either end produces.
func (t *testSession) exchange() {
	for len(t.toNT) > 0 || len(t.toCPE) > 0 {
		if len(t.toNT) > 0 {
			frame := t.toNT[0]
			t.toNT = t.toNT[1:]
			if ev, ok := t.nt.Ingress(t.now, frame); ok {
				fmt.Printf("NT  event: %s\n", ev.Kind)
			}
		}
		if len(t.toCPE) > 0 {
			frame := t.toCPE[0]
			t.toCPE = t.toCPE[1:]
			if ev, ok := t.cpe.Ingress(t.now, frame); ok {
				fmt.Printf("CPE event: %s\n", ev.Kind)
			}
		}
	}
}

func (t *testSession) advance(d time.Duration) {
	t.now = t.now.Add(d)
	for _, ctrl := range []*pri.Controller{t.nt, t.cpe} {
		for {
			ev, ok := ctrl.RunReady(t.now)
			if !ok {
				break
			}
			fmt.Printf("timer event: %s\n", ev.Kind)
		}
	}
}

func (t *testSession) establishment() {
	fmt.Println("--- S1: PTP layer-2 establishment")
	t.nt.Establish(t.now, q921.SAPICallControl, q921.TEIPRI)
	t.exchange()
}

func (t *testSession) iframeRoundTrip() {
	fmt.Println("--- S2: I-frame round trip")
	t.nt.SendQ931(t.now, q921.SAPICallControl, q921.TEIPRI, []byte{0x08, 0x01, 0x01, 0x05, 0x04, 0x03, 0x80, 0x90, 0xa3, 0x18, 0x01, 0x89})
	t.exchange()
	t.cpe.SendQ931(t.now, q921.SAPICallControl, q921.TEIPRI, []byte{0x08, 0x01, 0x81, 0x07, 0x04, 0x03, 0x80, 0x90, 0xa3})
	t.exchange()
}

func (t *testSession) rejRetransmit() {
	fmt.Println("--- S3: REJ-driven retransmission")
	t.nt.SendQ931(t.now, q921.SAPICallControl, q921.TEIPRI, []byte{0x08, 0x01, 0x01, 0x7b})
	t.nt.SendQ931(t.now, q921.SAPICallControl, q921.TEIPRI, []byte{0x08, 0x01, 0x01, 0x7d})
	// Swallow the frames and reject instead of delivering, as a peer
	// that missed them would.
	t.toCPE = nil
	rej := q921.EncodeHeader(q921.Header{
		SAPI: q921.SAPICallControl, TEI: q921.TEIPRI, CR: false, Type: q921.FrameREJ, NR: 1,
	}, nil)
	t.toNT = append(t.toNT, withFCS(rej))
	t.exchange()
	t.toCPE = nil
}

func (t *testSession) roseName() {
	fmt.Println("--- S4: ROSE CallingName encode/decode")
	msg := rose.Message{
		Kind:        rose.KindInvoke,
		InvokeID:    7,
		HasInvokeID: true,
		Op:          rose.OpCallingName,
		Arg:         rose.NameArg{Name: "Alice", Presentation: rose.PresentationAllowed},
	}
	buf, ok := rose.Encode(make([]byte, 0, 64), rose.SwitchQSIG, msg)
	if !ok {
		fmt.Println("encode failed")
		return
	}
	fmt.Printf("encoded: %s\n", hex.EncodeToString(buf))
	decoded, _, ok := rose.Decode(buf, rose.SwitchQSIG)
	if !ok {
		fmt.Println("decode failed")
		return
	}
	name := decoded.Arg.(rose.NameArg)
	fmt.Printf("decoded: invoke_id=%d name=%q\n", decoded.InvokeID, name.Name)
}

func (t *testSession) indefiniteLength() {
	fmt.Println("--- S5: indefinite-length SEQUENCE")
	in := []byte{0x30, 0x80, 0x02, 0x01, 0x05, 0x00, 0x00}
	c := ber.NewDecoder(in)
	c.DecodeTag()
	c.DecodeLength()
	var v int32
	if tag, ok := c.DecodeTag(); ok && tag == ber.MakeTag(ber.ClassUniversal, ber.TagInteger) {
		v, _ = c.DecodeInteger()
	}
	fmt.Printf("decoded INTEGER(%d) from indefinite form\n", v)

	enc := ber.NewEncoder(make([]byte, 0, 8))
	lenPos, _ := enc.BeginConstructed(ber.MakeTag(ber.ClassUniversal|ber.ConstructedFlag, ber.TagSequence), ber.LenFormShort)
	enc.EncodeInteger(ber.MakeTag(ber.ClassUniversal, ber.TagInteger), 5)
	enc.EndConstructed(lenPos)
	fmt.Printf("re-encoded definite form: %s\n", hex.EncodeToString(enc.Bytes()))
}

func t200Exhaustion() {
	fmt.Println("--- S6: T200 exhaustion in AWAITING_ESTABLISHMENT")
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	ctrl := pri.NewController(pri.Config{SwitchType: pri.SwitchEuroISDNE1, Network: true, PTP: true}, logrus.NewEntry(log))
	ctrl.Write = func(frame []byte) (int, error) {
		fmt.Printf("NT  -> %s (unanswered)\n", hex.EncodeToString(frame))
		return len(frame), nil
	}
	now := time.Unix(0, 0)
	ctrl.Establish(now, q921.SAPICallControl, q921.TEIPRI)
	for i := 0; i < 4; i++ {
		now = now.Add(1000 * time.Millisecond)
		for {
			ev, ok := ctrl.RunReady(now)
			if !ok {
				break
			}
			fmt.Printf("t=%dms event: %s\n", now.UnixMilli(), ev.Kind)
		}
	}
}

func main() {
	t := newTest()
	t.establishment()
	t.iframeRoundTrip()
	t.rejRetransmit()
	t.roseName()
	t.indefiniteLength()
	t200Exhaustion()
}
