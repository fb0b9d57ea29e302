package message

import (
	"bytes"
	"testing"
)

func TestOptionsAddOrdering(t *testing.T) {
	var opts Options
	opts.AddString(OptionURIPath, "second")
	opts.Add(OptionIfMatch, nil)
	opts.AddString(OptionURIPath, "first-added-but-same-number")

	if len(opts) != 3 {
		t.Fatalf("len(opts) = %d, want 3", len(opts))
	}
	if opts[0].Number != OptionIfMatch {
		t.Errorf("opts[0].Number = %v, want OptionIfMatch", opts[0].Number)
	}
	if opts[1].Number != OptionURIPath || opts[2].Number != OptionURIPath {
		t.Errorf("opts[1:] numbers = %v, %v, want both OptionURIPath", opts[1].Number, opts[2].Number)
	}
	// Stable sort: insertion order preserved among equal-numbered options.
	if string(opts[1].Value) != "second" {
		t.Errorf("opts[1].Value = %q, want %q (stable order)", opts[1].Value, "second")
	}
}

func TestOptionsAddUint(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{}},
		{1, []byte{1}},
		{255, []byte{255}},
		{256, []byte{1, 0}},
		{65536, []byte{1, 0, 0}},
	}
	for _, tt := range tests {
		var opts Options
		opts.AddUint(OptionMaxAge, tt.v)
		got := opts[0].Value
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AddUint(%d) value = %v, want %v", tt.v, got, tt.want)
		}
		v, ok := opts.GetUint(OptionMaxAge)
		if !ok || v != tt.v {
			t.Errorf("GetUint() = (%d, %v), want (%d, true)", v, ok, tt.v)
		}
	}
}

func TestOptionsURIPathRoundTrip(t *testing.T) {
	var opts Options
	opts.SetURIPath("/sensors/temp")
	if got, want := opts.URIPath(), "/sensors/temp"; got != want {
		t.Errorf("URIPath() = %q, want %q", got, want)
	}
	if len(opts.GetAll(OptionURIPath)) != 2 {
		t.Errorf("got %d Uri-Path options, want 2", len(opts.GetAll(OptionURIPath)))
	}
}

func TestOptionsRemove(t *testing.T) {
	var opts Options
	opts.AddString(OptionURIPath, "a")
	opts.AddString(OptionURIQuery, "b=c")
	opts.Remove(OptionURIPath)
	if _, ok := opts.Get(OptionURIPath); ok {
		t.Error("Uri-Path still present after Remove")
	}
	if _, ok := opts.Get(OptionURIQuery); !ok {
		t.Error("Uri-Query removed unexpectedly")
	}
}

func TestOptionsObserveAndContentFormat(t *testing.T) {
	var opts Options
	opts.AddUint(OptionObserve, 0)
	opts.AddUint(OptionContentFormat, 50) // application/json

	if v, ok := opts.Observe(); !ok || v != 0 {
		t.Errorf("Observe() = (%d, %v), want (0, true)", v, ok)
	}
	if v, ok := opts.ContentFormat(); !ok || v != 50 {
		t.Errorf("ContentFormat() = (%d, %v), want (50, true)", v, ok)
	}
}
