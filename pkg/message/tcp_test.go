package message

import (
	"bytes"
	"testing"
)

func TestTCPCodecRoundTrip(t *testing.T) {
	req := NewRequest(TypeConfirmable, CodeGET, 0, []byte{0x01})
	req.Options.SetURIPath("/a/b")
	req.Payload = []byte("body")

	codec := TCPCodec{}
	encoded, err := codec.Encode(req.Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Code != req.Code {
		t.Errorf("decoded Code = %v, want %v", decoded.Code, req.Code)
	}
	if !bytes.Equal(decoded.Token, req.Token) {
		t.Errorf("decoded Token = %v, want %v", decoded.Token, req.Token)
	}
	if got, want := decoded.URIPath(), "/a/b"; got != want {
		t.Errorf("decoded URIPath() = %q, want %q", got, want)
	}
	if !bytes.Equal(decoded.Payload, req.Payload) {
		t.Errorf("decoded Payload = %q, want %q", decoded.Payload, req.Payload)
	}
}

func TestFrameLengthNeedsMoreData(t *testing.T) {
	if _, ok := FrameLength(nil); ok {
		t.Error("FrameLength(nil) = ok, want false")
	}
	// lenNibble=13 signals one extended length byte; none supplied yet.
	if _, ok := FrameLength([]byte{0xD0}); ok {
		t.Error("FrameLength() with missing extended length byte = ok, want false")
	}
}

func TestFrameLengthMatchesEncodedSize(t *testing.T) {
	req := NewRequest(TypeConfirmable, CodePOST, 0, nil)
	req.Payload = bytes.Repeat([]byte("x"), 300) // forces the 14-nibble extended length path

	encoded, err := (TCPCodec{}).Encode(req.Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	n, ok := FrameLength(encoded)
	if !ok {
		t.Fatal("FrameLength() ok = false, want true")
	}
	if n != len(encoded) {
		t.Errorf("FrameLength() = %d, want %d", n, len(encoded))
	}
}

func TestTCPCodecMultipleFramesOnStream(t *testing.T) {
	req1, err := (TCPCodec{}).Encode(NewRequest(TypeConfirmable, CodeGET, 0, nil).Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	req2Msg := NewRequest(TypeConfirmable, CodePOST, 0, []byte{0x01})
	req2Msg.Payload = []byte("second")
	req2, err := (TCPCodec{}).Encode(req2Msg.Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	stream := append(append([]byte{}, req1...), req2...)

	n1, ok := FrameLength(stream)
	if !ok || n1 != len(req1) {
		t.Fatalf("FrameLength() first frame = (%d, %v), want (%d, true)", n1, ok, len(req1))
	}
	m1, err := (TCPCodec{}).Decode(stream[:n1])
	if err != nil || m1.Code != CodeGET {
		t.Fatalf("Decode() first frame = (%+v, %v), want CodeGET", m1, err)
	}

	rest := stream[n1:]
	n2, ok := FrameLength(rest)
	if !ok || n2 != len(req2) {
		t.Fatalf("FrameLength() second frame = (%d, %v), want (%d, true)", n2, ok, len(req2))
	}
	m2, err := (TCPCodec{}).Decode(rest[:n2])
	if err != nil || m2.Code != CodePOST || string(m2.Payload) != "second" {
		t.Fatalf("Decode() second frame = (%+v, %v)", m2, err)
	}
}
