package resolver

import (
	"sync"
	"time"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

// outcome is what a task's resultCh eventually receives: either a decoded
// response or a terminal error.
type outcome struct {
	msg *dnswire.Message
	err error
}

// task is one outstanding request tracked by a single worker. It is only
// ever read or mutated from that worker's own goroutine, per the
// single-owner-per-transport design (spec §5).
type task struct {
	id          uint16
	msg         *dnswire.Message
	resultCh    chan outcome
	retriesLeft uint8
	timeSent    time.Time
	hasTimeSent bool
	settled     bool

	// ownerMu guards owner, the worker currently holding this task. A
	// truncation/overflow fallback moves a task from the UDP worker to the
	// TCP worker after Send has already returned control to the caller's
	// ctx.Done() select, so cancellation needs to find the current owner
	// rather than the one Send originally enqueued onto.
	ownerMu sync.Mutex
	owner   *worker
}

func newTask(msg *dnswire.Message, retries uint8) *task {
	return &task{
		id:          msg.ID,
		msg:         msg,
		retriesLeft: retries,
		resultCh:    make(chan outcome, 1),
	}
}

// resolve and reject are idempotent: once a task has settled, later calls
// are no-ops, so a late response arriving after a timeout rejection cannot
// overwrite the already-delivered outcome.
func (t *task) resolve(msg *dnswire.Message) {
	if t.settled {
		return
	}
	t.settled = true
	t.resultCh <- outcome{msg: msg}
}

func (t *task) reject(err error) {
	if t.settled {
		return
	}
	t.settled = true
	t.resultCh <- outcome{err: err}
}

func (t *task) setOwner(w *worker) {
	t.ownerMu.Lock()
	t.owner = w
	t.ownerMu.Unlock()
}

func (t *task) currentOwner() *worker {
	t.ownerMu.Lock()
	defer t.ownerMu.Unlock()
	return t.owner
}
