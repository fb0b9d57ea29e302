package message

import "encoding/binary"

// payloadMarker separates options from payload (RFC 7252 Section 3).
const payloadMarker = 0xFF

// UDPCodec implements the RFC 7252 Section 3 wire format: a fixed 4-byte
// header, a token, TLV-delta-encoded options and an optional payload
// marked by 0xFF.
type UDPCodec struct{}

// Encode writes m using the fixed 4-byte CoAP-over-UDP header.
func (UDPCodec) Encode(m *Message) ([]byte, error) {
	if len(m.Token) > MaxTokenLength {
		return nil, ErrInvalidTokenLength
	}

	buf := make([]byte, 4, 4+len(m.Token)+16+len(m.Payload)+1)
	buf[0] = (Version << 6) | (uint8(m.Type) << 4) | uint8(len(m.Token))
	buf[1] = uint8(m.Code)
	binary.BigEndian.PutUint16(buf[2:4], m.MID)
	buf = append(buf, m.Token...)

	optBytes, err := encodeOptions(m.Options)
	if err != nil {
		return nil, err
	}
	buf = append(buf, optBytes...)

	if len(m.Payload) > 0 {
		buf = append(buf, payloadMarker)
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

// Decode parses a single UDP datagram as one CoAP message.
func (UDPCodec) Decode(b []byte) (*Message, error) {
	if len(b) < 4 {
		return nil, ErrTruncated
	}
	ver := b[0] >> 6
	if ver != Version {
		return nil, ErrInvalidVersion
	}
	typ := Type((b[0] >> 4) & 0x3)
	tkl := int(b[0] & 0xf)
	if tkl > MaxTokenLength {
		return nil, ErrInvalidTokenLength
	}
	code := Code(b[1])
	mid := binary.BigEndian.Uint16(b[2:4])

	rest := b[4:]
	if len(rest) < tkl {
		return nil, ErrTruncated
	}
	token := append([]byte(nil), rest[:tkl]...)
	rest = rest[tkl:]

	opts, payload, err := decodeOptions(rest)
	if err != nil {
		return nil, err
	}

	m := &Message{
		Version: ver,
		Type:    typ,
		Code:    code,
		MID:     mid,
		Token:   token,
		Options: opts,
		Payload: payload,
	}
	return m, nil
}

// encodeOptions writes opts using RFC 7252's delta encoding: each option's
// number is stored as the delta from the previous option's number, so
// options must already be sorted by number (Options.Add keeps them sorted).
func encodeOptions(opts Options) ([]byte, error) {
	var buf []byte
	prev := OptionNumber(0)
	for _, opt := range opts {
		if opt.Number < prev {
			return nil, ErrOptionOutOfOrder
		}
		delta := uint32(opt.Number - prev)
		prev = opt.Number
		length := uint32(len(opt.Value))

		deltaNibble, deltaExt := splitOptionValue(delta)
		lengthNibble, lengthExt := splitOptionValue(length)

		buf = append(buf, byte(deltaNibble<<4)|byte(lengthNibble))
		buf = append(buf, deltaExt...)
		buf = append(buf, lengthExt...)
		buf = append(buf, opt.Value...)
	}
	return buf, nil
}

// splitOptionValue encodes a delta or length value into its 4-bit nibble
// plus any extended bytes, per RFC 7252 Section 3.1's 13/14-as-extended
// convention.
func splitOptionValue(v uint32) (nibble uint8, ext []byte) {
	switch {
	case v < 13:
		return uint8(v), nil
	case v < 269:
		return 13, []byte{byte(v - 13)}
	default:
		ext = make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(v-269))
		return 14, ext
	}
}

// decodeOptions parses the option sequence and any trailing payload from b.
func decodeOptions(b []byte) (Options, []byte, error) {
	var opts Options
	num := OptionNumber(0)

	for len(b) > 0 {
		if b[0] == payloadMarker {
			b = b[1:]
			if len(b) == 0 {
				// Payload marker with no payload is malformed, but be
				// lenient: treat as an empty payload.
				return opts, nil, nil
			}
			return opts, b, nil
		}

		deltaNibble := b[0] >> 4
		lengthNibble := b[0] & 0xf
		b = b[1:]

		if deltaNibble == 15 || lengthNibble == 15 {
			return nil, nil, ErrInvalidOption
		}

		delta, rest, err := readExtendedValue(deltaNibble, b)
		if err != nil {
			return nil, nil, err
		}
		b = rest

		length, rest, err := readExtendedValue(lengthNibble, b)
		if err != nil {
			return nil, nil, err
		}
		b = rest

		if uint32(len(b)) < length {
			return nil, nil, ErrTruncated
		}

		num += OptionNumber(delta)
		value := append([]byte(nil), b[:length]...)
		b = b[length:]
		opts = append(opts, Option{Number: num, Value: value})
	}
	return opts, nil, nil
}

// readExtendedValue resolves a 4-bit nibble into its full value, consuming
// the extended bytes that follow it when nibble is 13 or 14.
func readExtendedValue(nibble uint8, b []byte) (value uint32, rest []byte, err error) {
	switch nibble {
	case 13:
		if len(b) < 1 {
			return 0, nil, ErrTruncated
		}
		return uint32(b[0]) + 13, b[1:], nil
	case 14:
		if len(b) < 2 {
			return 0, nil, ErrTruncated
		}
		return uint32(binary.BigEndian.Uint16(b[:2])) + 269, b[2:], nil
	default:
		return uint32(nibble), b, nil
	}
}
