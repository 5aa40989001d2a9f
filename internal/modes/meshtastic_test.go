package modes

import (
	"bytes"
	"testing"
)

func TestParsePSKWellKnownValues(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"none", []byte{}},
		{"default", []byte{0x01}},
		{"NONE", []byte{}},
	}
	for _, c := range cases {
		got, err := ParsePSK(c.in)
		if err != nil {
			t.Fatalf("ParsePSK(%q) error: %v", c.in, err)
		}
		if !bytes.Equal(got, c.want) {
			t.Fatalf("ParsePSK(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParsePSKRandomIs32Bytes(t *testing.T) {
	got, err := ParsePSK("random")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 32 {
		t.Fatalf("expected 32-byte random key, got %d bytes", len(got))
	}
}

func TestParsePSKSimplePassphraseIsSHA256(t *testing.T) {
	got, err := ParsePSK("simple:hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 32 {
		t.Fatalf("expected 32-byte derived key, got %d bytes", len(got))
	}
}

func TestParsePSKHexFormat(t *testing.T) {
	got, err := ParsePSK("0x0102030405060708090a0b0c0d0e0f10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 16 {
		t.Fatalf("expected 16-byte key, got %d bytes", len(got))
	}
}

func TestParsePSKInvalidFormat(t *testing.T) {
	if _, err := ParsePSK("not-a-valid-psk!!"); err == nil {
		t.Fatalf("expected an error for an invalid PSK string")
	}
}

func TestFormatNodeIDBroadcast(t *testing.T) {
	if got := formatNodeID(broadcastAddr); got != "^all" {
		t.Fatalf("unexpected broadcast id: %q", got)
	}
}

func TestFormatNodeIDRegular(t *testing.T) {
	if got := formatNodeID(0xABCDEF01); got != "!abcdef01" {
		t.Fatalf("unexpected node id: %q", got)
	}
}
