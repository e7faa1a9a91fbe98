package ber

import (
	"bytes"
	"encoding/hex"
	"testing"

	"pgregory.net/rapid"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex vector %q: %v", s, err)
	}
	return b
}

func TestDecodeLengthForms(t *testing.T) {
	pattern := []struct {
		name   string
		prefix string
		body   int // zero octets appended after the length
		length int
		ok     bool
	}{
		{"short", "05", 5, 5, true},
		{"short-max", "7f", 127, 127, true},
		{"long-u8", "8180", 128, 128, true},
		{"long-u16", "820101", 257, 257, true},
		{"long-truncated", "820101", 0, 0, false},
		{"indefinite", "80", 2, -1, true},
		{"indefinite-no-term", "80", 0, 0, false},
		{"reserved-127", "ff01", 2, 0, false},
	}

	for _, p := range pattern {
		in := append(mustHex(t, p.prefix), make([]byte, p.body)...)
		c := NewDecoder(in)
		length, ok := c.DecodeLength()
		if ok != p.ok {
			t.Errorf("%s: ok expect %v, actual %v", p.name, p.ok, ok)
			continue
		}
		if ok && length != p.length {
			t.Errorf("%s: expect %d, actual %d", p.name, p.length, length)
		}
	}
}

func TestEncodeLengthShortestForm(t *testing.T) {
	pattern := []struct {
		length int
		ev     string
	}{
		{0, "00"},
		{5, "05"},
		{127, "7f"},
		{128, "8180"},
		{255, "81ff"},
		{256, "820100"},
		{65535, "82ffff"},
		{65536, "83010000"},
	}

	for _, p := range pattern {
		c := NewEncoder(make([]byte, 0, 8))
		if !c.EncodeLength(p.length) {
			t.Errorf("EncodeLength(%d) failed", p.length)
			continue
		}
		if got := hex.EncodeToString(c.Bytes()); got != p.ev {
			t.Errorf("EncodeLength(%d): expect %s, actual %s", p.length, p.ev, got)
		}
	}
}

func TestDecodeTagExtendedForm(t *testing.T) {
	pattern := []struct {
		in string
		ev uint32
		ok bool
	}{
		{"02", MakeTag(ClassUniversal, TagInteger), true},
		{"a1", MakeTag(ClassContext|ConstructedFlag, 1), true},
		{"5f8123", MakeTag(ClassApp, 0xa3), true},
		// Redundant extended form of a small tag is normalised.
		{"5f05", MakeTag(ClassApp, 5), true},
		{"5f81", 0, false}, // continuation bit set, buffer ends
	}

	for _, p := range pattern {
		c := NewDecoder(mustHex(t, p.in))
		tag, ok := c.DecodeTag()
		if ok != p.ok {
			t.Errorf("DecodeTag(%s): ok expect %v, actual %v", p.in, p.ok, ok)
			continue
		}
		if ok && tag != p.ev {
			t.Errorf("DecodeTag(%s): expect %08x, actual %08x", p.in, p.ev, tag)
		}
	}
}

func TestIntegerVectors(t *testing.T) {
	pattern := []struct {
		value int32
		body  string
	}{
		{0, "0100"},
		{5, "0105"},
		{127, "017f"},
		{128, "020080"},
		{256, "020100"},
		{-1, "01ff"},
		{-129, "02ff7f"},
		{2147483647, "047fffffff"},
		{-2147483648, "0480000000"},
	}

	for _, p := range pattern {
		c := NewEncoder(make([]byte, 0, 8))
		if !c.EncodeInteger(MakeTag(ClassUniversal, TagInteger), p.value) {
			t.Errorf("EncodeInteger(%d) failed", p.value)
			continue
		}
		want := append([]byte{0x02}, mustHex(t, p.body)...)
		if !bytes.Equal(c.Bytes(), want) {
			t.Errorf("EncodeInteger(%d): expect %x, actual %x", p.value, want, c.Bytes())
		}

		d := NewDecoder(mustHex(t, p.body))
		got, ok := d.DecodeInteger()
		if !ok || got != p.value {
			t.Errorf("DecodeInteger(%s): expect %d, actual %d ok=%v", p.body, p.value, got, ok)
		}
	}
}

func TestOIDRoundTrip(t *testing.T) {
	oid := OID{Values: []uint32{43, 12, 9, 0}}
	c := NewEncoder(make([]byte, 0, 16))
	if !c.EncodeOID(MakeTag(ClassUniversal, TagOID), oid) {
		t.Fatalf("EncodeOID failed")
	}
	if got := hex.EncodeToString(c.Bytes()); got != "06042b0c0900" {
		t.Errorf("EncodeOID: expect 06042b0c0900, actual %s", got)
	}

	d := NewDecoder(c.Bytes())
	if tag, ok := d.DecodeTag(); !ok || tag != MakeTag(ClassUniversal, TagOID) {
		t.Fatalf("OID tag decode failed")
	}
	back, ok := d.DecodeOID()
	if !ok {
		t.Fatalf("DecodeOID failed")
	}
	if len(back.Values) != len(oid.Values) {
		t.Fatalf("DecodeOID: expect %d values, actual %d", len(oid.Values), len(back.Values))
	}
	for i := range oid.Values {
		if back.Values[i] != oid.Values[i] {
			t.Errorf("DecodeOID: value %d expect %d, actual %d", i, oid.Values[i], back.Values[i])
		}
	}
}

func TestOIDTooManySubIdentifiers(t *testing.T) {
	// 11 single-octet sub-identifiers must fail, never truncate.
	c := NewDecoder(mustHex(t, "0b0102030405060708090a0b"))
	if _, ok := c.DecodeOID(); ok {
		t.Errorf("expected OID with 11 sub-identifiers to be rejected")
	}
}

func TestConstructedIndefiniteString(t *testing.T) {
	// Constructed OCTET STRING, indefinite length, two primitive
	// substrings "ABC" + "DE", then end-of-contents.
	in := mustHex(t, "2480"+"0403414243"+"04024445"+"0000")
	c := NewDecoder(in)
	tag, ok := c.DecodeTag()
	if !ok {
		t.Fatalf("tag decode failed")
	}
	s, ok := c.DecodeStringBin(tag, 16)
	if !ok {
		t.Fatalf("string decode failed")
	}
	if string(s) != "ABCDE" {
		t.Errorf("expect ABCDE, actual %q", s)
	}
	if c.Pos != len(in) {
		t.Errorf("expect cursor at end %d, actual %d", len(in), c.Pos)
	}
}

func TestNonConstructedIndefiniteString(t *testing.T) {
	// Non-standard variant: primitive tag with indefinite length, first
	// null byte terminates.
	in := mustHex(t, "0480"+"414243"+"00"+"0000")
	c := NewDecoder(in)
	tag, _ := c.DecodeTag()
	s, ok := c.DecodeStringBin(tag, 16)
	if !ok || string(s) != "ABC" {
		t.Errorf("expect ABC, actual %q ok=%v", s, ok)
	}
}

func TestStringTruncationPolicies(t *testing.T) {
	in := mustHex(t, "0405" + "48656c6c6f")
	c := NewDecoder(in)
	tag, _ := c.DecodeTag()
	if _, ok := c.DecodeStringBin(tag, 3); ok {
		t.Errorf("binary policy: expected over-long string to fail")
	}

	c = NewDecoder(in)
	tag, _ = c.DecodeTag()
	s, ok := c.DecodeStringMax(tag, 3)
	if !ok || string(s) != "Hel" {
		t.Errorf("max policy: expect Hel, actual %q ok=%v", s, ok)
	}
	if c.Pos != len(in) {
		t.Errorf("max policy: cursor must still consume the full value")
	}
}

func TestIndefiniteSequenceThenDefiniteEncode(t *testing.T) {
	// spec scenario: SEQUENCE (indefinite) { INTEGER 5 } decodes, and
	// the same value encodes in definite form as 30 03 02 01 05.
	in := mustHex(t, "3080"+"020105"+"0000")
	c := NewDecoder(in)
	tag, ok := c.DecodeTag()
	if !ok || tag != MakeTag(ClassUniversal|ConstructedFlag, TagSequence) {
		t.Fatalf("sequence tag decode failed")
	}
	length, ok := c.DecodeLength()
	if !ok || length != -1 {
		t.Fatalf("expect indefinite length, actual %d ok=%v", length, ok)
	}
	if tag, ok = c.DecodeTag(); !ok || tag != MakeTag(ClassUniversal, TagInteger) {
		t.Fatalf("integer tag decode failed")
	}
	v, ok := c.DecodeInteger()
	if !ok || v != 5 {
		t.Fatalf("expect INTEGER 5, actual %d", v)
	}
	if !c.SkipIndefiniteBody() {
		t.Fatalf("terminator skip failed")
	}
	if c.Pos != len(in) {
		t.Errorf("expect cursor at end-of-input %d, actual %d", len(in), c.Pos)
	}

	e := NewEncoder(make([]byte, 0, 8))
	lenPos, ok := e.BeginConstructed(MakeTag(ClassUniversal|ConstructedFlag, TagSequence), LenFormShort)
	if !ok {
		t.Fatalf("BeginConstructed failed")
	}
	if !e.EncodeInteger(MakeTag(ClassUniversal, TagInteger), 5) {
		t.Fatalf("EncodeInteger failed")
	}
	if !e.EndConstructed(lenPos) {
		t.Fatalf("EndConstructed failed")
	}
	if got := hex.EncodeToString(e.Bytes()); got != "3003020105" {
		t.Errorf("expect 3003020105, actual %s", got)
	}
}

func TestEndConstructedShrinksReservedLength(t *testing.T) {
	// Reserve the 3-octet form, emit a short body, and verify the gap
	// closes to shortest form.
	e := NewEncoder(make([]byte, 0, 16))
	lenPos, _ := e.BeginConstructed(MakeTag(ClassContext|ConstructedFlag, 1), LenFormU16)
	e.EncodeInteger(MakeTag(ClassUniversal, TagInteger), 7)
	if !e.EndConstructed(lenPos) {
		t.Fatalf("EndConstructed failed")
	}
	if got := hex.EncodeToString(e.Bytes()); got != "a103020107" {
		t.Errorf("expect a103020107, actual %s", got)
	}
}

func TestLengthRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(0, 1<<31-1).Draw(t, "length")
		e := NewEncoder(make([]byte, 0, 8))
		if !e.EncodeLength(length) {
			t.Fatalf("EncodeLength(%d) failed", length)
		}
		encoded := e.Bytes()

		// Shortest form: no wasted octets.
		if length < 128 && len(encoded) != 1 {
			t.Fatalf("EncodeLength(%d): expected short form", length)
		}
		if length >= 128 && encoded[1] == 0 {
			t.Fatalf("EncodeLength(%d): leading zero length octet", length)
		}

		// Give the decoder a buffer that claims the body exists.
		padded := append(append([]byte{}, encoded...), make([]byte, min(length, 1<<16))...)
		c := NewDecoder(padded)
		got, ok := c.DecodeLength()
		if length > 1<<16 {
			// The decoder rejects lengths that overrun the buffer; only
			// the re-encode is checked at this size.
			if ok {
				t.Fatalf("DecodeLength accepted a body longer than the buffer")
			}
			return
		}
		if !ok || got != length {
			t.Fatalf("DecodeLength: expect %d, actual %d ok=%v", length, got, ok)
		}
	})
}

func TestIntegerRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.Int32().Draw(t, "value")
		e := NewEncoder(make([]byte, 0, 8))
		if !e.EncodeInteger(MakeTag(ClassUniversal, TagInteger), value) {
			t.Fatalf("EncodeInteger(%d) failed", value)
		}
		c := NewDecoder(e.Bytes())
		if tag, ok := c.DecodeTag(); !ok || tag != MakeTag(ClassUniversal, TagInteger) {
			t.Fatalf("tag mismatch")
		}
		got, ok := c.DecodeInteger()
		if !ok || got != value {
			t.Fatalf("round trip: expect %d, actual %d ok=%v", value, got, ok)
		}
	})
}

func TestOIDRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Uint32(), 1, 10).Draw(t, "values")
		oid := OID{Values: values}
		e := NewEncoder(make([]byte, 0, 64))
		if !e.EncodeOID(MakeTag(ClassUniversal, TagOID), oid) {
			t.Fatalf("EncodeOID failed")
		}
		c := NewDecoder(e.Bytes())
		if tag, ok := c.DecodeTag(); !ok || tag != MakeTag(ClassUniversal, TagOID) {
			t.Fatalf("OID tag decode failed")
		}
		back, ok := c.DecodeOID()
		if !ok || len(back.Values) != len(values) {
			t.Fatalf("round trip failed: %v -> %v ok=%v", values, back.Values, ok)
		}
		for i := range values {
			if back.Values[i] != values[i] {
				t.Fatalf("value %d: expect %d, actual %d", i, values[i], back.Values[i])
			}
		}
	})
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
