package message

import (
	"bytes"
	"testing"
)

func TestUDPCodecRoundTrip(t *testing.T) {
	req := NewRequest(TypeConfirmable, CodeGET, 0x1234, []byte{0xDE, 0xAD})
	req.Options.SetURIPath("/sensors/temp")
	req.Options.AddUint(OptionObserve, 0)
	req.Payload = []byte("hello")

	codec := UDPCodec{}
	encoded, err := codec.Encode(req.Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if decoded.Type != req.Type || decoded.Code != req.Code || decoded.MID != req.MID {
		t.Errorf("decoded header mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Token, req.Token) {
		t.Errorf("decoded Token = %v, want %v", decoded.Token, req.Token)
	}
	if got, want := decoded.URIPath(), "/sensors/temp"; got != want {
		t.Errorf("decoded URIPath() = %q, want %q", got, want)
	}
	if !bytes.Equal(decoded.Payload, req.Payload) {
		t.Errorf("decoded Payload = %q, want %q", decoded.Payload, req.Payload)
	}
}

func TestUDPCodecNoPayload(t *testing.T) {
	ack := NewEmptyACK(7)
	codec := UDPCodec{}

	encoded, err := codec.Encode(ack.Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(encoded) != 4 {
		t.Fatalf("encoded empty ACK length = %d, want 4", len(encoded))
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !decoded.IsEmpty() {
		t.Error("decoded message should be empty")
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("decoded Payload = %v, want empty", decoded.Payload)
	}
}

func TestUDPCodecExtendedOptionLengths(t *testing.T) {
	// Exercise both the 13-269 and >=269 extended-length branches.
	req := NewRequest(TypeNonConfirmable, CodePUT, 1, nil)
	req.Options.Add(OptionURIQuery, bytes.Repeat([]byte("a"), 200))
	req.Options.Add(OptionProxyURI, bytes.Repeat([]byte("b"), 400))

	codec := UDPCodec{}
	encoded, err := codec.Encode(req.Message)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded.Options) != 2 {
		t.Fatalf("decoded %d options, want 2", len(decoded.Options))
	}
	if len(decoded.Options[0].Value) != 200 || len(decoded.Options[1].Value) != 400 {
		t.Errorf("decoded option lengths = %d, %d, want 200, 400",
			len(decoded.Options[0].Value), len(decoded.Options[1].Value))
	}
}

func TestUDPCodecDecodeErrors(t *testing.T) {
	codec := UDPCodec{}

	if _, err := codec.Decode([]byte{0x00, 0x01}); err != ErrTruncated {
		t.Errorf("short header error = %v, want ErrTruncated", err)
	}

	badVersion := []byte{0x00, 0x01, 0x00, 0x00}
	if _, err := codec.Decode(badVersion); err != ErrInvalidVersion {
		t.Errorf("bad version error = %v, want ErrInvalidVersion", err)
	}

	badTKL := []byte{0x4F, 0x01, 0x00, 0x00} // ver=1, TKL=15 (reserved)
	if _, err := codec.Decode(badTKL); err != ErrInvalidTokenLength {
		t.Errorf("bad TKL error = %v, want ErrInvalidTokenLength", err)
	}
}

func TestUDPCodecTokenTooLong(t *testing.T) {
	req := NewRequest(TypeConfirmable, CodeGET, 1, make([]byte, 9))
	if _, err := (UDPCodec{}).Encode(req.Message); err != ErrInvalidTokenLength {
		t.Errorf("Encode() error = %v, want ErrInvalidTokenLength", err)
	}
}
