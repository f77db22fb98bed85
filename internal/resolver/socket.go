package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
	"github.com/arrowhead-go/core-dns/internal/metrics"
)

// Socket is the resolver's public entry point: one logical connection to
// a single DNS server, multiplexed over an internally-owned UDP worker
// and TCP worker (spec §4.F). Safe for concurrent use by multiple
// goroutines; Send blocks the calling goroutine until the matching
// response, a terminal failure, or context cancellation.
type Socket struct {
	cfg Config
	udp *worker
	tcp *worker

	mu        sync.Mutex
	activeIDs map[uint16]struct{}
}

// New validates cfg and returns a Socket with no transport yet open;
// transports open lazily on the first Send that needs them.
func New(cfg Config) (*Socket, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	s := &Socket{cfg: normalized, activeIDs: make(map[uint16]struct{})}
	s.udp = newWorker("udp", normalized, dialUDP, s.fallbackToTCP)
	s.tcp = newWorker("tcp", normalized, dialTCP, func(t *task) {
		t.reject(newError(KindRequestTooLong, nil))
	})
	return s, nil
}

// fallbackToTCP is invoked by the UDP worker when a request overflows the
// UDP payload limit or comes back truncated (TC=1). It re-encodes the
// message (unchanged content, so this is deterministic) and, provided it
// still fits in a TCP frame, hands it to the TCP worker with no retries.
func (s *Socket) fallbackToTCP(t *task) {
	encoded, err := t.msg.Encode()
	if err != nil {
		t.reject(newError(KindOther, err))
		return
	}
	if len(encoded) > dnswire.MaxMessageSize {
		t.reject(newError(KindRequestTooLong, nil))
		return
	}
	t.retriesLeft = 0
	t.hasTimeSent = false
	if err := s.tcp.enqueue(t); err != nil {
		t.reject(err)
		return
	}
	t.setOwner(s.tcp)
}

// udpRetries is how many retransmissions a UDP-sized task gets before
// RequestUnanswered, per spec §4.F's transport-selection table.
const udpRetries = 2

// Send submits msg and blocks until a matching response arrives, every
// retry is exhausted, or ctx is done. Transport selection follows spec
// §4.F: UPDATE always goes over TCP with no retries; a message encoding
// to 512 bytes or less goes over UDP with two retries; anything larger
// that still fits in 65535 bytes goes over TCP with no retries; anything
// bigger is rejected immediately as RequestTooLong.
func (s *Socket) Send(ctx context.Context, msg *dnswire.Message) (*dnswire.Message, error) {
	encoded, err := msg.Encode()
	if err != nil {
		return nil, newError(KindOther, err)
	}
	size := len(encoded)

	var target *worker
	var retries uint8
	switch {
	case msg.Flags.Opcode == dnswire.OpcodeUpdate:
		target = s.tcp
	case size <= maxUDPPayload:
		target = s.udp
		retries = udpRetries
	case size <= dnswire.MaxMessageSize:
		target = s.tcp
	default:
		return nil, newError(KindRequestTooLong, nil)
	}

	if err := s.reserveID(msg.ID); err != nil {
		return nil, err
	}
	defer s.releaseID(msg.ID)

	t := newTask(msg, retries)
	if err := target.enqueue(t); err != nil {
		return nil, err
	}
	t.setOwner(target)

	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(target.name).Observe(time.Since(start).Seconds())
	}()

	select {
	case res := <-t.resultCh:
		return res.msg, res.err
	case <-ctx.Done():
		// A truncation/overflow fallback may have already moved this task
		// onto the TCP worker, so cancel against its current owner rather
		// than the transport Send originally chose.
		t.currentOwner().cancel(t.id)
		// The task may have already settled with a real outcome in the
		// instant before cancellation was observed; prefer that over a
		// synthetic cancellation error.
		res := <-t.resultCh
		if res.err == nil {
			return res.msg, nil
		}
		return nil, newError(KindOther, ctx.Err())
	}
}

func (s *Socket) reserveID(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activeIDs[id]; ok {
		return newError(KindRequestIDInUse, fmt.Errorf("resolver: id %d already outstanding on this socket", id))
	}
	s.activeIDs[id] = struct{}{}
	return nil
}

func (s *Socket) releaseID(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeIDs, id)
}

// Close tears down both transports and rejects every outstanding task.
func (s *Socket) Close() error {
	s.udp.stop()
	s.tcp.stop()
	return nil
}
