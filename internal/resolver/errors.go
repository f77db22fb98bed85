// Package resolver implements a DNS client socket that multiplexes UDP and
// TCP transports with retry, timeout and truncation-fallback semantics
// (spec §4.F). Callers submit a dnswire.Message and block for its matching
// response; internal transport state is owned by a single goroutine per
// transport, so concurrent callers never race on the outbound/inbound
// queues directly.
package resolver

import "fmt"

// Kind classifies a resolver Error so callers can branch on failure mode
// without string-matching (spec §7).
type Kind int

const (
	// KindRequestIDInUse means a task with the same message ID is already
	// outstanding on this resolver.
	KindRequestIDInUse Kind = iota
	// KindRequestTooLong means the encoded message exceeds what any
	// transport this resolver owns can carry (65535 bytes on TCP).
	KindRequestTooLong
	// KindRequestUnanswered means retries were exhausted (UDP) or the
	// single attempt timed out (TCP) without a matching response.
	KindRequestUnanswered
	// KindResponseIDUnexpected means a datagram or TCP frame decoded to an
	// ID with no matching outstanding task.
	KindResponseIDUnexpected
	// KindResponseMalformed means the transport could not decode a frame
	// it received into a well-formed message.
	KindResponseMalformed
	// KindTSIGBadSig means TSIG verification of a response failed MAC
	// comparison.
	KindTSIGBadSig
	// KindTSIGBadKey means TSIG verification found an unrecognized key
	// name or algorithm.
	KindTSIGBadKey
	// KindTSIGBadTime means TSIG verification found the response outside
	// the signer's fudge window.
	KindTSIGBadTime
	// KindOther covers transport-level failures not otherwise classified:
	// dial errors, read errors, context cancellation.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindRequestIDInUse:
		return "request id in use"
	case KindRequestTooLong:
		return "request too long"
	case KindRequestUnanswered:
		return "request unanswered"
	case KindResponseIDUnexpected:
		return "response id unexpected"
	case KindResponseMalformed:
		return "response malformed"
	case KindTSIGBadSig:
		return "tsig bad signature"
	case KindTSIGBadKey:
		return "tsig bad key"
	case KindTSIGBadTime:
		return "tsig bad time"
	default:
		return "other"
	}
}

// Error is the error type returned by every resolver operation. Callers
// that need to branch on failure mode should use errors.As against *Error
// and switch on Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolver: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("resolver: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
