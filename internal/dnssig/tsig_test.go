package dnssig

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

func TestSigner_TSIGUpdate_MatchesFixture(t *testing.T) {
	secret, err := base64.StdEncoding.DecodeString("VQEOSuLEGcsnJqjOJKnjbA==")
	if err != nil {
		t.Fatalf("bad fixture secret: %v", err)
	}
	wantMAC, err := hex.DecodeString(strings.ReplaceAll(
		"52 fb 20 ed cf bc 96 5d 2b 04 1c 13 4e f3 2f 6b", " ", ""))
	if err != nil {
		t.Fatalf("bad fixture MAC: %v", err)
	}

	fixedTime := time.Unix(1506594227, 0)
	signer := &Signer{
		KeyName:      "key.arrowhead.org.",
		KeySecret:    secret,
		Algorithm:    DefaultAlgorithm,
		FudgeSeconds: 300,
		Now:          func() time.Time { return fixedTime },
	}

	msg, err := dnswire.NewUpdate(37352).
		Zone("beta.arrowhead.org.").
		Sign(signer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded := dnswire.DecodeMessage(encoded)
	if len(decoded.Additional) != 1 {
		t.Fatalf("ARCOUNT: expected 1 additional RR, got %d", len(decoded.Additional))
	}
	tsigRR := decoded.Additional[0]
	if tsigRR.Type != dnswire.TypeTSIG {
		t.Fatalf("expected TSIG RR, got type %v", tsigRR.Type)
	}
	tsigData, ok := tsigRR.RDATA.(dnswire.TSIGData)
	if !ok {
		t.Fatalf("expected TSIGData, got %T", tsigRR.RDATA)
	}
	if !bytes.Equal(tsigData.MAC, wantMAC) {
		t.Fatalf("MAC mismatch:\n got  % x\n want % x", tsigData.MAC, wantMAC)
	}
	if tsigData.OriginalID != 37352 {
		t.Errorf("OriginalID = %d, want 37352", tsigData.OriginalID)
	}
}

func TestSigner_VerifyRoundTrip(t *testing.T) {
	secret := []byte("test-shared-secret")
	fixedTime := time.Unix(1700000000, 0)
	signer := &Signer{
		KeyName:      "key.arrowhead.org.",
		KeySecret:    secret,
		Algorithm:    "hmac-sha256",
		FudgeSeconds: 300,
		Now:          func() time.Time { return fixedTime },
	}

	msg, err := dnswire.NewUpdate(1).Zone("zone.arrowhead.org.").Sign(signer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded := dnswire.DecodeMessage(encoded)
	if err := signer.VerifyMessage(encoded, decoded); err != nil {
		t.Errorf("VerifyMessage failed on a correctly signed message: %v", err)
	}
}

func TestSigner_Verify_BadKey(t *testing.T) {
	signer := &Signer{KeyName: "key.arrowhead.org.", KeySecret: []byte("s")}
	other := &Signer{KeyName: "intruder.arrowhead.org.", KeySecret: []byte("s")}

	msg, _ := dnswire.NewUpdate(1).Zone("zone.arrowhead.org.").Sign(other).Build()
	encoded, _ := msg.Encode()
	decoded := dnswire.DecodeMessage(encoded)

	if err := signer.VerifyMessage(encoded, decoded); err != ErrBadKey {
		t.Errorf("Verify with mismatched key name = %v, want ErrBadKey", err)
	}
}

func TestSigner_Verify_BadTime(t *testing.T) {
	signTime := time.Unix(1000000000, 0)
	verifyTime := time.Unix(1000000000+1000, 0) // well past the 300s fudge

	signer := &Signer{
		KeyName: "key.arrowhead.org.", KeySecret: []byte("s"),
		Algorithm: DefaultAlgorithm, FudgeSeconds: 300,
		Now: func() time.Time { return signTime },
	}
	msg, _ := dnswire.NewUpdate(1).Zone("zone.arrowhead.org.").Sign(signer).Build()
	encoded, _ := msg.Encode()
	decoded := dnswire.DecodeMessage(encoded)

	signer.Now = func() time.Time { return verifyTime }
	if err := signer.VerifyMessage(encoded, decoded); err != ErrBadTime {
		t.Errorf("Verify with drift past fudge = %v, want ErrBadTime", err)
	}
}
