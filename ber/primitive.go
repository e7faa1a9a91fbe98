// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package ber

// DecodeBoolean reads a single-octet boolean body (non-zero is true),
// after the tag has already been consumed by the caller.
func (c *Cursor) DecodeBoolean() (value bool, ok bool) {
	length, ok := c.DecodeLength()
	if !ok || length != 1 {
		return false, false
	}
	value = c.Buf[c.Pos] != 0
	c.Pos++
	return value, true
}

// DecodeInteger reads a signed, two's-complement, MSB-first integer body
// of the length just decoded. Length 0 (empty) or indefinite is rejected.
func (c *Cursor) DecodeInteger() (value int32, ok bool) {
	length, ok := c.DecodeLength()
	if !ok || length <= 0 {
		return 0, false
	}
	if c.Buf[c.Pos]&0x80 != 0 {
		value = -1
	}
	for i := 0; i < length; i++ {
		value = (value << 8) | int32(c.Buf[c.Pos])
		c.Pos++
	}
	return value, true
}

// DecodeNull requires a zero-length body.
func (c *Cursor) DecodeNull() (ok bool) {
	length, ok := c.DecodeLength()
	return ok && length == 0
}

// OID is an ordered list of up to 10 sub-identifiers, the first two
// compressed per X.690 into a single combined value.
type OID struct {
	Values []uint32
}

const maxOIDValues = 10

// DecodeOID reads up to 10 sub-identifiers. More than 10 is a hard
// failure — the decoder deliberately never silently truncates.
func (c *Cursor) DecodeOID() (oid OID, ok bool) {
	length, ok := c.DecodeLength()
	if !ok || length < 0 {
		return OID{}, false
	}
	end := c.Pos + length
	var values []uint32
	for c.Pos < end {
		var value uint32
		terminated := false
		for c.Pos < end {
			b := c.Buf[c.Pos]
			c.Pos++
			value = (value << 7) | uint32(b&0x7f)
			if b&0x80 == 0 {
				terminated = true
				break
			}
		}
		if !terminated {
			return OID{}, false
		}
		values = append(values, value)
	}
	if len(values) > maxOIDValues {
		return OID{}, false
	}
	return OID{Values: values}, true
}

// EncodeOID writes tag, then oid's sub-identifiers in base-128 form,
// each one terminated by a clear high bit on its final octet.
func (c *Cursor) EncodeOID(tag uint32, oid OID) (ok bool) {
	start := c.Pos
	if !c.EncodeTag(tag) {
		c.Pos = start
		return false
	}
	var body []byte
	for _, v := range oid.Values {
		var octets []byte
		octets = append(octets, byte(v&0x7f))
		v >>= 7
		for v > 0 {
			octets = append(octets, byte(v&0x7f)|0x80)
			v >>= 7
		}
		for i := len(octets) - 1; i >= 0; i-- {
			body = append(body, octets[i])
		}
	}
	if !c.EncodeLength(len(body)) {
		c.Pos = start
		return false
	}
	if c.remaining() < len(body) {
		c.Pos = start
		return false
	}
	copy(c.Buf[c.Pos:], body)
	c.Pos += len(body)
	return true
}

// DecodeStringBin reads an OCTET STRING-like primitive that fails if the
// decoded content would not fit in maxLen (the "binary" truncation policy
// of spec.md §4.2, used for payloads that must round-trip exactly).
// Constructed-indefinite strings are concatenated from their primitive
// substrings; a non-constructed indefinite string is the non-standard
// variant where the first null byte terminates.
func (c *Cursor) DecodeStringBin(tag uint32, maxLen int) (value []byte, ok bool) {
	return c.decodeString(tag, maxLen, false)
}

// DecodeStringMax behaves like DecodeStringBin but truncates silently
// instead of failing — the "display text" policy of spec.md §4.2.
func (c *Cursor) DecodeStringMax(tag uint32, maxLen int) (value []byte, ok bool) {
	return c.decodeString(tag, maxLen, true)
}

func (c *Cursor) decodeString(tag uint32, maxLen int, truncate bool) (value []byte, ok bool) {
	length, ok := c.DecodeLength()
	if !ok {
		return nil, false
	}
	if length >= 0 {
		copyLen := length
		if copyLen > maxLen {
			if !truncate {
				return nil, false
			}
			copyLen = maxLen
		}
		value = append(value, c.Buf[c.Pos:c.Pos+copyLen]...)
		c.Pos += length
		return value, true
	}

	constructed := TagClassBits(tag)&ConstructedFlag != 0
	if constructed {
		for {
			subTag, ok := c.DecodeTag()
			if !ok {
				return nil, false
			}
			if subTag == MakeTag(ClassUniversal, TagIndefTerm) {
				// Second octet of the end-of-contents marker.
				if c.remaining() < 1 || c.Buf[c.Pos] != 0x00 {
					return nil, false
				}
				c.Pos++
				break
			}
			rem := maxLen - len(value)
			if rem < 0 {
				rem = 0
			}
			subValue, ok := c.decodeString(subTag, rem, truncate)
			if !ok {
				return nil, false
			}
			value = append(value, subValue...)
		}
		return value, true
	}

	// Non-ITU indefinite string: the first 0x00 byte terminates.
	start := c.Pos
	for c.Pos < len(c.Buf) && c.Buf[c.Pos] != 0x00 {
		c.Pos++
	}
	if c.Pos >= len(c.Buf) {
		return nil, false
	}
	raw := c.Buf[start:c.Pos]
	c.Pos++ // consume the terminating null
	if len(raw) > maxLen {
		if !truncate {
			return nil, false
		}
		raw = raw[:maxLen]
	}
	return append(value, raw...), true
}

// EncodeBoolean writes tag then a one-octet boolean body.
func (c *Cursor) EncodeBoolean(tag uint32, value bool) (ok bool) {
	if !c.EncodeTag(tag) || !c.EncodeLength(1) {
		return false
	}
	if c.remaining() < 1 {
		return false
	}
	if value {
		c.Buf[c.Pos] = 0xff
	} else {
		c.Buf[c.Pos] = 0x00
	}
	c.Pos++
	return true
}

// EncodeInteger writes tag then the shortest two's-complement
// representation of value.
func (c *Cursor) EncodeInteger(tag uint32, value int32) (ok bool) {
	body := integerBytes(value)
	if !c.EncodeTag(tag) || !c.EncodeLength(len(body)) {
		return false
	}
	if c.remaining() < len(body) {
		return false
	}
	copy(c.Buf[c.Pos:], body)
	c.Pos += len(body)
	return true
}

func integerBytes(value int32) []byte {
	// Shortest two's-complement form: drop leading 0x00/0xff octets that
	// don't change the sign of the next octet.
	var raw [4]byte
	raw[0] = byte(value >> 24)
	raw[1] = byte(value >> 16)
	raw[2] = byte(value >> 8)
	raw[3] = byte(value)

	i := 0
	for i < 3 {
		if raw[i] == 0x00 && raw[i+1]&0x80 == 0 {
			i++
			continue
		}
		if raw[i] == 0xff && raw[i+1]&0x80 != 0 {
			i++
			continue
		}
		break
	}
	return raw[i:]
}

// EncodeNull writes tag then a zero-length body.
func (c *Cursor) EncodeNull(tag uint32) (ok bool) {
	return c.EncodeTag(tag) && c.EncodeLength(0)
}

// EncodeStringBin writes tag, shortest-form length, and str verbatim.
func (c *Cursor) EncodeStringBin(tag uint32, str []byte) (ok bool) {
	if !c.EncodeTag(tag) || !c.EncodeLength(len(str)) {
		return false
	}
	if c.remaining() < len(str) {
		return false
	}
	copy(c.Buf[c.Pos:], str)
	c.Pos += len(str)
	return true
}

// EncodeStringMax writes str truncated to maxLen if it's longer.
func (c *Cursor) EncodeStringMax(tag uint32, str []byte, maxLen int) (ok bool) {
	if len(str) > maxLen {
		str = str[:maxLen]
	}
	return c.EncodeStringBin(tag, str)
}
