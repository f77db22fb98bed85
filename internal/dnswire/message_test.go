package dnswire

import (
	"bytes"
	"encoding/hex"
	"net"
	"strings"
	"testing"
)

func mustParseIP(s string) net.IP {
	return net.ParseIP(s)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return b
}

func TestMessage_PTRQueryRoundTrip(t *testing.T) {
	want := mustHex(t, "30 39 01 00 00 01 00 00 00 00 00 00"+
		"05 61 6c 70 68 61 09 61 72 72 6f 77 68 65 61 64 03 6f 72 67 00 00 0c 00 01")

	m := NewMessage(12345)
	m.Flags.RD = true
	m.Question = []RR{Question("alpha.arrowhead.org.", TypePTR)}

	got, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode mismatch:\n got  % x\n want % x", got, want)
	}

	decoded := DecodeMessage(want)
	if decoded.ID != 12345 {
		t.Errorf("ID = %d, want 12345", decoded.ID)
	}
	if !decoded.Flags.RD {
		t.Errorf("RD flag not set on decode")
	}
	if len(decoded.Question) != 1 || decoded.Question[0].Name != "alpha.arrowhead.org." || decoded.Question[0].Type != TypePTR {
		t.Errorf("unexpected question: %+v", decoded.Question)
	}
}

func TestMessage_EncodeDecodeRoundTrip(t *testing.T) {
	m := NewMessage(999)
	m.Flags = Flags{QR: true, Opcode: OpcodeQuery, AA: true, RD: true, RA: true, Rcode: RcodeNoError}
	m.Question = []RR{Question("example.org.", TypeA)}
	m.Answer = []RR{{
		Name: "example.org.", Type: TypeA, Class: ClassIN, TTL: 300,
		RDATA: A{IP: mustParseIP("93.184.216.34")},
	}}

	encoded, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded := DecodeMessage(encoded)

	if decoded.ID != m.ID || decoded.Flags != m.Flags {
		t.Errorf("header mismatch: got %+v, want %+v", decoded.Flags, m.Flags)
	}
	if len(decoded.Answer) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(decoded.Answer))
	}
	gotA, ok := decoded.Answer[0].RDATA.(A)
	if !ok {
		t.Fatalf("expected A RDATA, got %T", decoded.Answer[0].RDATA)
	}
	if !gotA.IP.Equal(mustParseIP("93.184.216.34")) {
		t.Errorf("A IP mismatch: got %v", gotA.IP)
	}
}

func TestFlags_EncodeDecode(t *testing.T) {
	f := Flags{QR: true, Opcode: OpcodeUpdate, AA: false, TC: true, RD: true, RA: false, Z: 0, Rcode: RcodeNXDomain}
	got := decodeFlags(f.encode())
	if got != f {
		t.Errorf("flags round-trip mismatch: got %+v, want %+v", got, f)
	}
}
