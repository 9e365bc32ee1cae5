package breakerbox

import "time"

// callStatus tracks the settlement of a single invocation.
type callStatus int

const (
	callPending callStatus = iota
	callResolved
	callRejected
)

// callRecord is one invocation tracked by the window, keyed by its ticket.
type callRecord struct {
	status    callStatus
	settledAt time.Time
}

// window tracks call outcomes over a trailing time interval and computes the
// failure rate among settled calls. A record is retained for span measured
// from its settlement, not from call start; pending calls never count toward
// the rate. Expiry is evaluated lazily against the clock, so disposal has no
// timers to cancel.
//
// The window is not safe for concurrent use on its own; the breaker
// serializes access under its mutex.
type window struct {
	clock      Clock
	span       time.Duration
	minSamples int

	next    uint64
	records map[uint64]*callRecord
}

func newWindow(clock Clock, span time.Duration, minSamples int) *window {
	return &window{
		clock:      clock,
		span:       span,
		minSamples: minSamples,
		records:    make(map[uint64]*callRecord),
	}
}

// begin registers a pending call and returns its ticket.
func (w *window) begin() uint64 {
	w.next++
	w.records[w.next] = &callRecord{status: callPending}
	return w.next
}

// settle marks the ticket resolved or rejected. Unknown or already-settled
// tickets are ignored; they belong to calls that outlived a reset.
func (w *window) settle(ticket uint64, failure bool) {
	r, ok := w.records[ticket]
	if !ok || r.status != callPending {
		return
	}
	if failure {
		r.status = callRejected
	} else {
		r.status = callResolved
	}
	r.settledAt = w.clock.Now()
}

// discard drops the ticket without counting its outcome.
func (w *window) discard(ticket uint64) {
	delete(w.records, ticket)
}

// failureRate returns rejected/settled among retained records. It is 0
// whenever fewer than minSamples calls have settled inside the window.
func (w *window) failureRate() float64 {
	w.prune()

	var settled, rejected int
	for _, r := range w.records {
		switch r.status {
		case callResolved:
			settled++
		case callRejected:
			settled++
			rejected++
		}
	}

	if settled < w.minSamples || settled == 0 {
		return 0
	}
	return float64(rejected) / float64(settled)
}

// prune drops settled records whose retention span has elapsed.
func (w *window) prune() {
	cutoff := w.clock.Now().Add(-w.span)
	for ticket, r := range w.records {
		if r.status != callPending && !r.settledAt.After(cutoff) {
			delete(w.records, ticket)
		}
	}
}

// reset drops all records, pending included.
func (w *window) reset() {
	clear(w.records)
}
