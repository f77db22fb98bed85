package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arrowhead-go/core-dns/internal/dnssig"
	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

// fakeTransport is an in-process stand-in for udpTransport/tcpTransport,
// letting tests drive the worker state machine without real sockets.
type fakeTransport struct {
	mu       sync.Mutex
	evCh     chan event
	sent     [][]byte
	sendFunc func(data []byte) error
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{evCh: make(chan event, 64)}
}

func (f *fakeTransport) send(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, data)
	fn := f.sendFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(data)
	}
	return nil
}

func (f *fakeTransport) events() <-chan event { return f.evCh }

func (f *fakeTransport) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.evCh)
	}
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) respond(id uint16, tc bool) {
	resp := dnswire.NewMessage(id)
	resp.Flags.QR = true
	resp.Flags.TC = tc
	f.evCh <- event{kind: evResponse, msg: resp}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Config{Address: "127.0.0.1", TimeoutMS: 100, KeepOpenMS: 100}.normalize()
	require.NoError(t, err)
	return cfg
}

// newTestWorker builds a worker whose dial function hands back a single
// fake transport, captured for assertions.
func newTestWorker(t *testing.T, name string, fallback func(*task)) (*worker, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	cfg := testConfig(t)
	if fallback == nil {
		fallback = func(tk *task) { tk.reject(newError(KindRequestTooLong, nil)) }
	}
	w := newWorker(name, cfg, func(Config) (transport, error) { return ft, nil }, fallback)
	t.Cleanup(w.stop)
	return w, ft
}

func TestWorker_EnqueueDuplicateIDRejected(t *testing.T) {
	w, ft := newTestWorker(t, "udp", nil)

	msg := dnswire.NewMessage(42)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	t1 := newTask(msg, 0)
	require.NoError(t, w.enqueue(t1))

	require.Eventually(t, func() bool { return ft.sentCount() >= 1 }, time.Second, 5*time.Millisecond)

	msg2 := dnswire.NewMessage(42)
	msg2.Question = []dnswire.RR{dnswire.Question("b.example.org.", dnswire.TypeA)}
	t2 := newTask(msg2, 0)
	err := w.enqueue(t2)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindRequestIDInUse, rerr.Kind)

	ft.respond(42, false)
	res := <-t1.resultCh
	require.NoError(t, res.err)
	require.Equal(t, uint16(42), res.msg.ID)
}

func TestWorker_ResponseResolvesTask(t *testing.T) {
	w, ft := newTestWorker(t, "udp", nil)

	msg := dnswire.NewMessage(7)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	tk := newTask(msg, 2)
	require.NoError(t, w.enqueue(tk))

	require.Eventually(t, func() bool { return ft.sentCount() >= 1 }, time.Second, 5*time.Millisecond)
	ft.respond(7, false)

	res := <-tk.resultCh
	require.NoError(t, res.err)
	require.Equal(t, uint16(7), res.msg.ID)
}

func TestWorker_TruncatedResponseFallsBackOnce(t *testing.T) {
	var fellBack []uint16
	var mu sync.Mutex
	w, ft := newTestWorker(t, "udp", func(tk *task) {
		mu.Lock()
		fellBack = append(fellBack, tk.id)
		mu.Unlock()
		tk.resolve(dnswire.NewMessage(tk.id)) // simulate the TCP retry settling
	})

	msg := dnswire.NewMessage(9)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	tk := newTask(msg, 0)
	require.NoError(t, w.enqueue(tk))
	require.Eventually(t, func() bool { return ft.sentCount() >= 1 }, time.Second, 5*time.Millisecond)

	ft.respond(9, true)

	res := <-tk.resultCh
	require.NoError(t, res.err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint16{9}, fellBack)
}

func TestWorker_TimeoutRetriesThenFails(t *testing.T) {
	cfg, err := Config{Address: "127.0.0.1", TimeoutMS: 60, KeepOpenMS: 1000}.normalize()
	require.NoError(t, err)
	ft := newFakeTransport()
	w := newWorker("udp", cfg, func(Config) (transport, error) { return ft, nil }, nil)
	t.Cleanup(w.stop)

	msg := dnswire.NewMessage(11)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	tk := newTask(msg, 2) // retries_left = 2: three attempts total

	require.NoError(t, w.enqueue(tk))

	select {
	case res := <-tk.resultCh:
		require.Error(t, res.err)
		var rerr *Error
		require.ErrorAs(t, res.err, &rerr)
		require.Equal(t, KindRequestUnanswered, rerr.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("task never settled")
	}

	require.GreaterOrEqual(t, ft.sentCount(), 3)
}

// signedResponse builds a QR response signed by signer, returning both its
// decoded form and the raw bytes it was decoded from (VerifyMessage needs
// the latter, since a re-encoding of the decoded struct would not
// necessarily reproduce the exact bytes the MAC was computed over).
func signedResponse(t *testing.T, id uint16, signer *dnssig.Signer) (*dnswire.Message, []byte) {
	t.Helper()
	msg := dnswire.NewMessage(id)
	msg.Flags.QR = true
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}

	priorBytes, err := msg.Encode()
	require.NoError(t, err)
	tsigRR, err := signer.Sign(id, priorBytes)
	require.NoError(t, err)
	msg.Additional = append(msg.Additional, tsigRR)

	raw, err := msg.Encode()
	require.NoError(t, err)
	return dnswire.DecodeMessage(raw), raw
}

func TestWorker_TSIGVerification_Success(t *testing.T) {
	signer := dnssig.NewSigner("key.arrowhead.org.", []byte("shared-secret"))
	ft := newFakeTransport()
	cfg := testConfig(t)
	cfg.Signer = signer
	w := newWorker("udp", cfg, func(Config) (transport, error) { return ft, nil }, nil)
	t.Cleanup(w.stop)

	msg := dnswire.NewMessage(70)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	tk := newTask(msg, 0)
	require.NoError(t, w.enqueue(tk))
	require.Eventually(t, func() bool { return ft.sentCount() >= 1 }, time.Second, 5*time.Millisecond)

	respMsg, raw := signedResponse(t, 70, signer)
	ft.evCh <- event{kind: evResponse, msg: respMsg, raw: raw}

	res := <-tk.resultCh
	require.NoError(t, res.err)
}

func TestWorker_TSIGVerification_BadSig(t *testing.T) {
	signer := dnssig.NewSigner("key.arrowhead.org.", []byte("shared-secret"))
	other := dnssig.NewSigner("key.arrowhead.org.", []byte("different-secret"))
	ft := newFakeTransport()
	cfg := testConfig(t)
	cfg.Signer = signer
	w := newWorker("udp", cfg, func(Config) (transport, error) { return ft, nil }, nil)
	t.Cleanup(w.stop)

	msg := dnswire.NewMessage(71)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	tk := newTask(msg, 0)
	require.NoError(t, w.enqueue(tk))
	require.Eventually(t, func() bool { return ft.sentCount() >= 1 }, time.Second, 5*time.Millisecond)

	// Signed with a different secret: the configured signer must reject it.
	respMsg, raw := signedResponse(t, 71, other)
	ft.evCh <- event{kind: evResponse, msg: respMsg, raw: raw}

	res := <-tk.resultCh
	require.Error(t, res.err)
	var rerr *Error
	require.ErrorAs(t, res.err, &rerr)
	require.Equal(t, KindTSIGBadSig, rerr.Kind)
}

func TestSocket_TransportSelectionByOpcodeAndSize(t *testing.T) {
	s := &Socket{activeIDs: make(map[uint16]struct{})}
	cfg := testConfig(t)
	s.cfg = cfg

	var udpSent, tcpSent int
	udpFake := newFakeTransport()
	tcpFake := newFakeTransport()
	s.udp = newWorker("udp", cfg, func(Config) (transport, error) { return udpFake, nil }, s.fallbackToTCP)
	s.tcp = newWorker("tcp", cfg, func(Config) (transport, error) { return tcpFake, nil }, func(tk *task) {
		tk.reject(newError(KindRequestTooLong, nil))
	})
	t.Cleanup(func() { _ = s.Close() })

	// Small message (UPDATE opcode) always goes to TCP.
	update, err := dnswire.NewUpdate(100).Zone("zone.example.org.").Build()
	require.NoError(t, err)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = s.Send(ctx, update)
	}()
	require.Eventually(t, func() bool { return tcpFake.sentCount() >= 1 }, time.Second, 5*time.Millisecond)
	tcpSent = tcpFake.sentCount()
	require.Equal(t, 1, tcpSent)

	// An ordinary small query goes over UDP.
	query := dnswire.NewMessage(200)
	query.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = s.Send(ctx, query)
	}()
	require.Eventually(t, func() bool { return udpFake.sentCount() >= 1 }, time.Second, 5*time.Millisecond)
	udpSent = udpFake.sentCount()
	require.Equal(t, 1, udpSent)
}

func TestSocket_DuplicateIDAcrossTransportsRejected(t *testing.T) {
	cfg := testConfig(t)
	s := &Socket{cfg: cfg, activeIDs: make(map[uint16]struct{})}
	udpFake := newFakeTransport()
	tcpFake := newFakeTransport()
	s.udp = newWorker("udp", cfg, func(Config) (transport, error) { return udpFake, nil }, s.fallbackToTCP)
	s.tcp = newWorker("tcp", cfg, func(Config) (transport, error) { return tcpFake, nil }, func(tk *task) {
		tk.reject(newError(KindRequestTooLong, nil))
	})
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.reserveID(300))
	defer s.releaseID(300)

	msg := dnswire.NewMessage(300)
	msg.Question = []dnswire.RR{dnswire.Question("a.example.org.", dnswire.TypeA)}
	_, err := s.Send(context.Background(), msg)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindRequestIDInUse, rerr.Kind)
}
