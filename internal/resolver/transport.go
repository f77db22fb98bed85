package resolver

import "github.com/arrowhead-go/core-dns/internal/dnswire"

// transportState tracks the lifecycle of a worker's underlying transport.
type transportState int

const (
	stateClosed transportState = iota
	stateOpening
	stateOpen
	stateClosing
)

// eventKind tags a transport event (spec Design Note §9's typed event
// union, in place of the source's dynamic event emitter).
type eventKind int

const (
	evResponse eventKind = iota
	evOverflow
	evTimeout
	evError
	evClosed
)

// event is what a transport pushes onto its events channel. Exactly one of
// the payload fields is meaningful, selected by kind.
type event struct {
	kind     eventKind
	msg      *dnswire.Message
	raw      []byte // the wire bytes msg was decoded from, for evResponse
	size     int
	err      error
	errKind  Kind
	graceful bool
}

// transport abstracts the wire-level send/receive loop for one underlying
// socket (UDP or TCP). A transport owns exactly one background goroutine
// that reads from the network and funnels everything it observes onto a
// single events channel; all state mutation in response to those events
// happens in the owning worker's goroutine, not here.
type transport interface {
	// send encodes nothing itself; data is already wire-ready. It returns
	// errOverflowUDP immediately for an oversize UDP datagram and an
	// *Error for a failed write; anything it learns asynchronously is
	// reported through events().
	send(data []byte) error
	// events returns the channel this transport publishes on. Closed when
	// the transport's read loop exits for good.
	events() <-chan event
	// close tears down the underlying socket. Safe to call once.
	close() error
}
