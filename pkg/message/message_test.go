package message

import "testing"

func TestNewMessageDefaults(t *testing.T) {
	m := NewMessage(TypeConfirmable, CodeGET, 42, []byte{0x01, 0x02})
	if m.Version != Version {
		t.Errorf("Version = %d, want %d", m.Version, Version)
	}
	if m.MID != 42 {
		t.Errorf("MID = %d, want 42", m.MID)
	}
	if !m.IsRequest() {
		t.Error("IsRequest() = false, want true")
	}
}

func TestMessageClassification(t *testing.T) {
	req := NewRequest(TypeConfirmable, CodeGET, 1, nil)
	if !req.IsRequest() || req.IsResponse() || req.IsEmpty() {
		t.Error("request classified incorrectly")
	}

	resp := NewResponse(TypeAcknowledgement, CodeContent, 1, nil)
	if resp.IsRequest() || !resp.IsResponse() || resp.IsEmpty() {
		t.Error("response classified incorrectly")
	}

	ack := NewEmptyACK(1)
	if ack.IsRequest() || ack.IsResponse() || !ack.IsEmpty() {
		t.Error("empty ACK classified incorrectly")
	}
	if ack.Type != TypeAcknowledgement {
		t.Errorf("NewEmptyACK Type = %v, want ACK", ack.Type)
	}

	rst := NewReset(1)
	if rst.Type != TypeReset || !rst.IsEmpty() {
		t.Error("NewReset did not build an empty RST")
	}
}

func TestMessageClone(t *testing.T) {
	orig := NewMessage(TypeConfirmable, CodeGET, 7, []byte{0xAA})
	orig.Options.AddString(OptionURIPath, "a")
	orig.Payload = []byte("hello")

	clone := orig.Clone()
	clone.Token[0] = 0xBB
	clone.Options[0].Value = []byte("mutated")
	clone.Payload[0] = 'H'

	if orig.Token[0] != 0xAA {
		t.Error("Clone did not deep-copy Token")
	}
	if string(orig.Options[0].Value) != "a" {
		t.Error("Clone did not deep-copy Options")
	}
	if orig.Payload[0] != 'h' {
		t.Error("Clone did not deep-copy Payload")
	}
}
