package resolver

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/arrowhead-go/core-dns/internal/dnssig"
	"github.com/arrowhead-go/core-dns/internal/dnswire"
	"github.com/arrowhead-go/core-dns/internal/metrics"
)

// tickInterval picks the period of the per-worker timeout-sweep ticker:
// a twentieth of the configured timeout, floored at 50ms so a very small
// TimeoutMS does not spin the loop.
func tickInterval(timeoutMS int) time.Duration {
	ms := timeoutMS / 20
	if ms < 50 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

type enqueueReq struct {
	t     *task
	reply chan error
}

type cancelReq struct{ id uint16 }

type openResult struct {
	tr  transport
	err error
}

// worker owns exactly one transport's lifecycle and the outbound/inbound
// queues feeding it (spec §4.F). Every field below is touched only from
// run's goroutine; enqueue, cancel and stop are the sole cross-goroutine
// entry points, each going through a channel so the state machine never
// needs its own mutex.
type worker struct {
	name     string // "udp" or "tcp"
	cfg      Config
	logger   *slog.Logger
	dial     func(Config) (transport, error)
	fallback func(*task) // only set on the UDP worker: hands a task to TCP

	tr    transport
	state transportState

	outbound []*task
	inbound  map[uint16]*task

	enqueueCh    chan enqueueReq
	cancelCh     chan cancelReq
	openResultCh chan openResult
	closeCh      chan struct{}
	doneCh       chan struct{}

	closeTimer *time.Timer
}

func newWorker(name string, cfg Config, dial func(Config) (transport, error), fallback func(*task)) *worker {
	w := &worker{
		name:         name,
		cfg:          cfg,
		logger:       cfg.Logger,
		dial:         dial,
		fallback:     fallback,
		inbound:      make(map[uint16]*task),
		enqueueCh:    make(chan enqueueReq),
		cancelCh:     make(chan cancelReq, 8),
		openResultCh: make(chan openResult, 1),
		closeCh:      make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) enqueue(t *task) error {
	reply := make(chan error, 1)
	select {
	case w.enqueueCh <- enqueueReq{t: t, reply: reply}:
		return <-reply
	case <-w.doneCh:
		return newError(KindOther, errors.New("resolver: worker closed"))
	}
}

func (w *worker) cancel(id uint16) {
	select {
	case w.cancelCh <- cancelReq{id: id}:
	case <-w.doneCh:
	}
}

func (w *worker) stop() {
	select {
	case w.closeCh <- struct{}{}:
	default:
	}
}

func (w *worker) run() {
	ticker := time.NewTicker(tickInterval(w.cfg.TimeoutMS))
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		var evCh <-chan event
		if w.tr != nil {
			evCh = w.tr.events()
		}
		var closeTimerC <-chan time.Time
		if w.closeTimer != nil {
			closeTimerC = w.closeTimer.C
		}

		select {
		case req := <-w.enqueueCh:
			req.reply <- w.handleEnqueue(req.t)
		case c := <-w.cancelCh:
			w.handleCancel(c.id)
		case ev, ok := <-evCh:
			if ok {
				w.handleEvent(ev)
			}
		case res := <-w.openResultCh:
			w.handleOpenResult(res)
		case <-ticker.C:
			w.handleTimeoutTick()
		case <-closeTimerC:
			w.handleCloseTimerFired()
		case <-w.closeCh:
			w.shutdown()
			return
		}
	}
}

// handleEnqueue implements spec §4.F step 1: reject a duplicate ID
// outright (it may not appear in either queue while the original is
// outstanding), otherwise append to outbound and poll.
func (w *worker) handleEnqueue(t *task) error {
	if _, ok := w.inbound[t.id]; ok {
		return newError(KindRequestIDInUse, nil)
	}
	for _, o := range w.outbound {
		if o.id == t.id {
			return newError(KindRequestIDInUse, nil)
		}
	}
	w.outbound = append(w.outbound, t)
	w.poll()
	return nil
}

func (w *worker) handleCancel(id uint16) {
	for i, t := range w.outbound {
		if t.id == id {
			w.outbound = append(w.outbound[:i], w.outbound[i+1:]...)
			t.reject(newError(KindOther, errors.New("resolver: task canceled")))
			w.armOrDisarmCloseTimer()
			return
		}
	}
	if t, ok := w.inbound[id]; ok {
		delete(w.inbound, id)
		t.reject(newError(KindOther, errors.New("resolver: task canceled")))
		w.armOrDisarmCloseTimer()
	}
}

// poll implements spec §4.F step 2: if nothing is queued there is nothing
// to do; if the transport is not open, start opening it and return (a
// later openResult re-enters poll); otherwise drain outbound onto the
// wire.
func (w *worker) poll() {
	if len(w.outbound) == 0 {
		return
	}
	switch w.state {
	case stateClosed:
		w.state = stateOpening
		go func() {
			tr, err := w.dial(w.cfg)
			w.openResultCh <- openResult{tr: tr, err: err}
		}()
		return
	case stateOpening, stateClosing:
		return
	}

	pending := w.outbound
	w.outbound = nil
	for _, t := range pending {
		encoded, err := t.msg.Encode()
		if err != nil {
			t.reject(newError(KindOther, err))
			continue
		}
		if sendErr := w.tr.send(encoded); sendErr != nil {
			if w.name == "udp" && errors.Is(sendErr, errOverflowUDP) {
				w.fallback(t)
				continue
			}
			t.reject(newError(KindOther, sendErr))
			continue
		}
		metrics.QueriesSentTotal.WithLabelValues(w.name, strconv.Itoa(int(t.msg.Flags.Opcode))).Inc()
		t.timeSent = time.Now()
		t.hasTimeSent = true
		w.inbound[t.id] = t
	}
	w.armOrDisarmCloseTimer()
}

func (w *worker) handleOpenResult(res openResult) {
	if res.err != nil {
		w.state = stateClosed
		w.rejectAll(newError(KindOther, res.err))
		return
	}
	w.tr = res.tr
	w.state = stateOpen
	metrics.TransportOpensTotal.WithLabelValues(w.name).Inc()
	w.poll()
}

// handleEvent dispatches one transport event (spec Design Note §9).
func (w *worker) handleEvent(ev event) {
	switch ev.kind {
	case evResponse:
		w.onResponse(ev.msg, ev.raw)
	case evOverflow:
		// Reserved for a future transport that can only detect overflow
		// asynchronously; current transports detect it synchronously in
		// send, handled in poll.
	case evTimeout:
		w.onIdleTimeout()
	case evError:
		w.onTransportError(ev.err, ev.errKind)
	case evClosed:
		w.onTransportClosed(ev.graceful, ev.err)
	}
}

// onResponse implements spec §4.F step 3. A UDP response with TC=1 is not
// delivered to the caller; instead the same request is requeued on TCP,
// per the truncation-fallback rule. An ID with no matching inbound task
// is reported to OnIgnoredError rather than silently dropped. A response
// carrying a TSIG RR is verified against cfg.Signer, if one is
// configured, before it is handed to the caller.
func (w *worker) onResponse(msg *dnswire.Message, raw []byte) {
	t, ok := w.inbound[msg.ID]
	if !ok {
		w.reportIgnored(newError(KindResponseIDUnexpected, nil))
		return
	}
	delete(w.inbound, msg.ID)

	if w.name == "udp" && msg.Flags.TC {
		metrics.TruncatedFallbacksTotal.Inc()
		w.fallback(t)
		w.armOrDisarmCloseTimer()
		return
	}

	if w.cfg.Signer != nil && hasTSIG(msg) {
		if err := w.verifyTSIG(msg, raw); err != nil {
			t.reject(err)
			w.armOrDisarmCloseTimer()
			return
		}
	}

	t.resolve(msg)
	w.armOrDisarmCloseTimer()
}

func hasTSIG(msg *dnswire.Message) bool {
	return len(msg.Additional) > 0 && msg.Additional[len(msg.Additional)-1].Type == dnswire.TypeTSIG
}

// verifyTSIG maps the signer's sentinel errors onto the resolver's own
// error taxonomy and records the outcome in TSIGVerifyTotal.
func (w *worker) verifyTSIG(msg *dnswire.Message, raw []byte) error {
	err := w.cfg.Signer.VerifyMessage(raw, msg)
	switch {
	case err == nil:
		metrics.TSIGVerifyTotal.WithLabelValues("ok").Inc()
		return nil
	case errors.Is(err, dnssig.ErrBadSig):
		metrics.TSIGVerifyTotal.WithLabelValues("bad_sig").Inc()
		return newError(KindTSIGBadSig, err)
	case errors.Is(err, dnssig.ErrBadKey):
		metrics.TSIGVerifyTotal.WithLabelValues("bad_key").Inc()
		return newError(KindTSIGBadKey, err)
	case errors.Is(err, dnssig.ErrBadTime):
		metrics.TSIGVerifyTotal.WithLabelValues("bad_time").Inc()
		return newError(KindTSIGBadTime, err)
	default:
		metrics.TSIGVerifyTotal.WithLabelValues("other").Inc()
		return newError(KindOther, err)
	}
}

// onIdleTimeout implements the TCP idle-timeout event: no bytes arrived
// within TimeoutMS on an open connection. Outstanding in-flight tasks are
// rejected with RequestUnanswered; the transport itself is about to be
// torn down by the read loop, reported via a following evClosed.
func (w *worker) onIdleTimeout() {
	for id, t := range w.inbound {
		delete(w.inbound, id)
		t.reject(newError(KindRequestUnanswered, nil))
		metrics.TimeoutsTotal.WithLabelValues(w.name).Inc()
	}
}

// onTransportError implements step 4: a stream frame whose body cannot be
// read in full is fatal to every task outstanding on this transport
// (spec Open Question #1). With no task outstanding, the error goes to
// OnIgnoredError instead. The UDP transport never raises this event: a
// malformed datagram decodes with zero-filled fields and reaches
// onResponse like any other datagram.
func (w *worker) onTransportError(err error, kind Kind) {
	if len(w.inbound) == 0 && len(w.outbound) == 0 {
		w.reportIgnored(newError(kind, err))
	}
	w.rejectAll(newError(kind, err))
	w.state = stateClosed
	w.tr = nil
	w.closeTimer = nil
}

// onTransportClosed implements step 5. A graceful TCP close (no error)
// with tasks still in flight re-queues them for retransmission on the
// next open, possibly duplicating a request the server already serviced
// (spec Open Question #2, kept as-is). A graceful UDP close only ever
// happens via our own deliberate idle-close, when both queues are
// already empty, so there is nothing to requeue there.
func (w *worker) onTransportClosed(graceful bool, err error) {
	if w.name == "tcp" && graceful && len(w.inbound) > 0 {
		requeued := make([]*task, 0, len(w.inbound))
		for id, t := range w.inbound {
			requeued = append(requeued, t)
			delete(w.inbound, id)
		}
		w.outbound = append(requeued, w.outbound...)
	} else if !graceful {
		w.rejectAll(newError(KindOther, err))
	}
	w.state = stateClosed
	w.tr = nil
	w.closeTimer = nil
	reason := "closed"
	if !graceful {
		reason = "error"
	}
	metrics.TransportClosesTotal.WithLabelValues(w.name, reason).Inc()
	w.poll()
}

// handleTimeoutTick implements step 6: any inbound task whose deadline
// has passed is either requeued with one fewer retry (UDP) or rejected
// outright (retriesLeft already 0, as every TCP task is dispatched with
// zero retries per the transport-selection rule in socket.go).
func (w *worker) handleTimeoutTick() {
	now := time.Now()
	deadline := time.Duration(w.cfg.TimeoutMS) * time.Millisecond
	var expired []*task
	for id, t := range w.inbound {
		if !t.hasTimeSent {
			continue
		}
		if now.Sub(t.timeSent) >= deadline {
			expired = append(expired, t)
			delete(w.inbound, id)
		}
	}
	for _, t := range expired {
		if t.retriesLeft > 0 {
			t.retriesLeft--
			w.outbound = append(w.outbound, t)
			metrics.RetriesTotal.WithLabelValues(w.name).Inc()
		} else {
			t.reject(newError(KindRequestUnanswered, nil))
			metrics.TimeoutsTotal.WithLabelValues(w.name).Inc()
		}
	}
	if len(expired) > 0 {
		w.poll()
	}
	w.armOrDisarmCloseTimer()
}

// handleCloseTimerFired implements step 7: if the queues are still empty
// when the deferred-close timer fires, close the transport; otherwise a
// task arrived in the meantime, and the timer stays disarmed until
// armOrDisarmCloseTimer next finds both queues empty.
func (w *worker) handleCloseTimerFired() {
	w.closeTimer = nil
	if len(w.outbound) == 0 && len(w.inbound) == 0 {
		if w.tr != nil {
			_ = w.tr.close()
			metrics.TransportClosesTotal.WithLabelValues(w.name, "idle").Inc()
		}
		w.state = stateClosed
		w.tr = nil
		return
	}
	w.armOrDisarmCloseTimer()
}

func (w *worker) armOrDisarmCloseTimer() {
	empty := len(w.outbound) == 0 && len(w.inbound) == 0
	if empty && w.state == stateOpen {
		if w.closeTimer == nil {
			w.closeTimer = time.NewTimer(time.Duration(w.cfg.KeepOpenMS) * time.Millisecond)
		}
		return
	}
	if w.closeTimer != nil {
		w.closeTimer.Stop()
		w.closeTimer = nil
	}
}

func (w *worker) rejectAll(err error) {
	for _, t := range w.outbound {
		t.reject(err)
	}
	w.outbound = nil
	for id, t := range w.inbound {
		t.reject(err)
		delete(w.inbound, id)
	}
}

func (w *worker) reportIgnored(err error) {
	if w.cfg.OnIgnoredError != nil {
		w.cfg.OnIgnoredError(err)
	}
}

func (w *worker) shutdown() {
	if w.tr != nil {
		_ = w.tr.close()
	}
	w.rejectAll(newError(KindOther, errors.New("resolver: socket closed")))
}
