// Package dnssig implements the RFC 2845 transaction signature (TSIG) used
// to authenticate DNS UPDATE messages.
package dnssig

import (
	"crypto/hmac"
	"crypto/md5" //#nosec G501 -- RFC 2845's legacy default algorithm, kept for compatibility
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"strings"
	"time"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

// DefaultAlgorithm is RFC 2845's legacy default. Modern deployments should
// prefer hmac-sha256; this default is preserved for compatibility with the
// source behaviour this subsystem is modelled on.
const DefaultAlgorithm = "hmac-md5.sig-alg.reg.int"

// DefaultFudgeSeconds is the default acceptable clock-drift window.
const DefaultFudgeSeconds = 300

var (
	// ErrBadSig is returned when the recomputed MAC does not match.
	ErrBadSig = errors.New("dnssig: TSIG signature verification failed")
	// ErrBadKey is returned for an unknown key name or unsupported algorithm.
	ErrBadKey = errors.New("dnssig: TSIG key or algorithm not recognized")
	// ErrBadTime is returned when the clock drift exceeds the fudge window.
	ErrBadTime = errors.New("dnssig: TSIG time outside fudge window")
)

// Signer holds the shared key material used to sign and verify UPDATE
// messages (spec §3 "TSIG state", §4.E).
type Signer struct {
	KeyName      string
	KeySecret    []byte
	Algorithm    string
	FudgeSeconds uint16

	// Now is used instead of time.Now so tests can pin the clock; defaults
	// to time.Now when nil.
	Now func() time.Time
}

// NewSigner returns a Signer with the RFC 2845 legacy defaults applied.
func NewSigner(keyName string, secret []byte) *Signer {
	return &Signer{
		KeyName:      keyName,
		KeySecret:    secret,
		Algorithm:    DefaultAlgorithm,
		FudgeSeconds: DefaultFudgeSeconds,
	}
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func canonicalAlgorithm(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func hashFor(algorithm string) (func() hash.Hash, error) {
	switch canonicalAlgorithm(algorithm) {
	case "hmac-md5.sig-alg.reg.int":
		return md5.New, nil
	case "hmac-sha1":
		return sha1.New, nil
	case "hmac-sha224":
		return sha256.New224, nil
	case "hmac-sha256":
		return sha256.New, nil
	case "hmac-sha384":
		return sha512.New384, nil
	case "hmac-sha512":
		return sha512.New, nil
	default:
		return nil, ErrBadKey
	}
}

// digestVariables serializes the TSIG variables canonicalised per RFC 2845
// §3.4.1: key name (lower-cased wire form), class ANY, TTL 0, algorithm
// name, time-signed, fudge, error, other-length and other data.
func digestVariables(keyName, algorithm string, timeSigned uint64, fudge, errCode uint16, other []byte) []byte {
	w := dnswire.NewWriter(make([]byte, dnswire.MaxMessageSize))
	_ = w.WriteName(keyName)
	w.WriteU16(uint16(dnswire.ClassANY))
	w.WriteU32(0)
	_ = w.WriteName(algorithm)
	w.WriteU48(timeSigned)
	w.WriteU16(fudge)
	w.WriteU16(errCode)
	w.WriteU16(uint16(len(other)))
	w.WriteRaw(other)
	out := make([]byte, w.Offset())
	copy(out, w.Buffer())
	return out
}

func computeMAC(secret []byte, algorithm string, priorBytes []byte, keyName string, timeSigned uint64, fudge, errCode uint16, other []byte) ([]byte, error) {
	hashFn, err := hashFor(algorithm)
	if err != nil {
		return nil, err
	}
	h := hmac.New(hashFn, secret)
	h.Write(priorBytes)
	h.Write(digestVariables(keyName, algorithm, timeSigned, fudge, errCode, other))
	return h.Sum(nil), nil
}

// Sign computes a TSIG RR over the message bytes written so far (priorBytes
// must not include any TSIG record). requestID becomes the RR's ORIGINAL ID
// field. The MAC size matches the configured algorithm's output length.
func (s *Signer) Sign(requestID uint16, priorBytes []byte) (dnswire.RR, error) {
	algorithm := s.Algorithm
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	fudge := s.FudgeSeconds
	if fudge == 0 {
		fudge = DefaultFudgeSeconds
	}
	timeSigned := uint64(s.now().Unix())

	mac, err := computeMAC(s.KeySecret, algorithm, priorBytes, s.KeyName, timeSigned, fudge, 0, nil)
	if err != nil {
		return dnswire.RR{}, err
	}

	return dnswire.RR{
		Name:  s.KeyName,
		Type:  dnswire.TypeTSIG,
		Class: dnswire.ClassANY,
		TTL:   0,
		RDATA: dnswire.TSIGData{
			Algorithm:  algorithm,
			TimeSigned: timeSigned,
			Fudge:      fudge,
			MAC:        mac,
			OriginalID: requestID,
			Error:      0,
			Other:      nil,
		},
	}, nil
}

// arcountOffset is the fixed RFC 1035 header offset of the ARCOUNT field.
const arcountOffset = 10

// VerifyMessage verifies the TSIG RR trailing m (its last additional
// record) against raw, the complete wire-format bytes m was decoded
// from. Per RFC 2845 §3.4.1, the MAC was computed over the message with
// ARCOUNT one less than the value actually on the wire (the count before
// the TSIG RR was appended), so this reconstructs that pre-increment
// header rather than simply slicing raw.
func (s *Signer) VerifyMessage(raw []byte, m *dnswire.Message) error {
	if len(m.Additional) == 0 {
		return ErrBadSig
	}
	tsigRR := m.Additional[len(m.Additional)-1]
	tsigWireLen := tsigRR.WireLen()
	if tsigWireLen > len(raw) || arcountOffset+2 > len(raw) {
		return ErrBadSig
	}
	priorBytes := make([]byte, len(raw)-tsigWireLen)
	copy(priorBytes, raw[:len(priorBytes)])

	origARCount := uint16(len(m.Additional) - 1)
	priorBytes[arcountOffset] = byte(origARCount >> 8)
	priorBytes[arcountOffset+1] = byte(origARCount)

	return s.Verify(priorBytes, tsigRR)
}

// Verify recomputes the MAC over priorBytes (the message bytes preceding
// the TSIG record) and rr's own TSIG variables, then checks the clock
// drift. It returns ErrBadKey for a key-name/algorithm mismatch, ErrBadSig
// for a MAC mismatch, ErrBadTime for excess drift, or nil on success.
func (s *Signer) Verify(priorBytes []byte, rr dnswire.RR) error {
	if !strings.EqualFold(strings.TrimSuffix(rr.Name, "."), strings.TrimSuffix(s.KeyName, ".")) {
		return ErrBadKey
	}
	tsig, ok := rr.RDATA.(dnswire.TSIGData)
	if !ok {
		return ErrBadSig
	}

	expected, err := computeMAC(s.KeySecret, tsig.Algorithm, priorBytes, rr.Name, tsig.TimeSigned, tsig.Fudge, tsig.Error, tsig.Other)
	if err != nil {
		return ErrBadKey
	}
	if !hmac.Equal(expected, tsig.MAC) {
		return ErrBadSig
	}

	now := uint64(s.now().Unix())
	var drift uint64
	if now > tsig.TimeSigned {
		drift = now - tsig.TimeSigned
	} else {
		drift = tsig.TimeSigned - now
	}
	if drift > uint64(tsig.Fudge) {
		return ErrBadTime
	}
	return nil
}
