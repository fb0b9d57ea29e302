package message

import "encoding/binary"

// TCPCodec implements the RFC 8323 Section 3.2 wire format used over
// stream transports (TCP and TLS): no Type or Message ID (the stream
// itself provides ordering and reliability), a variable-length length
// field, a Code byte, token, then the same option+payload encoding as
// UDPCodec.
type TCPCodec struct{}

// Encode writes m in the RFC 8323 framing. m.Type and m.MID are ignored:
// CoAP-over-TCP has no notion of Confirmable/Non-confirmable or message
// IDs, since the stream transport already guarantees delivery and order.
func (TCPCodec) Encode(m *Message) ([]byte, error) {
	if len(m.Token) > MaxTokenLength {
		return nil, ErrInvalidTokenLength
	}

	optBytes, err := encodeOptions(m.Options)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, len(optBytes)+len(m.Payload)+1)
	body = append(body, optBytes...)
	if len(m.Payload) > 0 {
		body = append(body, payloadMarker)
		body = append(body, m.Payload...)
	}

	length := uint32(len(body))
	lenNibble, lenExt := splitFrameLength(length)

	buf := make([]byte, 0, 1+len(lenExt)+1+len(m.Token)+len(body))
	buf = append(buf, byte(lenNibble<<4)|byte(len(m.Token)))
	buf = append(buf, lenExt...)
	buf = append(buf, byte(m.Code))
	buf = append(buf, m.Token...)
	buf = append(buf, body...)
	return buf, nil
}

// Decode parses a single already-delimited TCP frame (see FrameLength) as
// one CoAP message.
func (TCPCodec) Decode(b []byte) (*Message, error) {
	if len(b) < 1 {
		return nil, ErrTruncated
	}
	lenNibble := b[0] >> 4
	tkl := int(b[0] & 0xf)
	if tkl > MaxTokenLength {
		return nil, ErrInvalidTokenLength
	}
	b = b[1:]

	_, rest, err := readFrameExtendedLength(lenNibble, b)
	if err != nil {
		return nil, err
	}
	b = rest

	if len(b) < 1 {
		return nil, ErrTruncated
	}
	code := Code(b[0])
	b = b[1:]

	if len(b) < tkl {
		return nil, ErrTruncated
	}
	token := append([]byte(nil), b[:tkl]...)
	b = b[tkl:]

	opts, payload, err := decodeOptions(b)
	if err != nil {
		return nil, err
	}

	return &Message{
		Version: Version,
		Code:    code,
		Token:   token,
		Options: opts,
		Payload: payload,
	}, nil
}

// FrameLength inspects the start of a byte stream and returns the total
// number of bytes the next frame occupies (header plus body), or ok=false
// if b does not yet contain enough bytes to know the length. Callers use
// this to pull exactly one frame off a stream before calling Decode.
func FrameLength(b []byte) (n int, ok bool) {
	if len(b) < 1 {
		return 0, false
	}
	lenNibble := b[0] >> 4
	headerLen := 1

	var extraLen int
	switch lenNibble {
	case 13:
		extraLen = 1
	case 14:
		extraLen = 2
	case 15:
		extraLen = 4
	}
	if len(b) < headerLen+extraLen {
		return 0, false
	}

	bodyLen, _, err := readFrameExtendedLength(lenNibble, b[headerLen:headerLen+extraLen])
	if err != nil {
		return 0, false
	}

	tkl := int(b[0] & 0xf)
	total := headerLen + extraLen + 1 /* code */ + tkl + int(bodyLen)
	return total, true
}

// splitFrameLength encodes the RFC 8323 Section 3.2 length field: a 4-bit
// nibble plus 0/1/2/4 extended bytes.
func splitFrameLength(v uint32) (nibble uint8, ext []byte) {
	switch {
	case v < 13:
		return uint8(v), nil
	case v < 269:
		return 13, []byte{byte(v - 13)}
	case v < 65805:
		ext = make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(v-269))
		return 14, ext
	default:
		ext = make([]byte, 4)
		binary.BigEndian.PutUint32(ext, v-65805)
		return 15, ext
	}
}

// readFrameExtendedLength resolves the length nibble into the full body
// length, consuming any extended bytes that follow it.
func readFrameExtendedLength(nibble uint8, b []byte) (value uint32, rest []byte, err error) {
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
	case 15:
		if len(b) < 4 {
			return 0, nil, ErrTruncated
		}
		return binary.BigEndian.Uint32(b[:4]) + 65805, b[4:], nil
	default:
		return uint32(nibble), b, nil
	}
}
