// Package mirror implements the Mirror pool (spec.md §3, §4.G): an
// ordered list of candidate base URLs, with scheduler-visible running
// counters guarded the same way the teacher's UsageStats guards its
// disk-usage counters — a small sync.Mutex around plain fields, since
// the scheduler is the only concurrent mutator and the critical section
// is a handful of integer increments.
package mirror

import "sync"

// Mirror is a discovered candidate base URL, per spec.md §3.
type Mirror struct {
	URL           string
	Preference    int // 0..100; discovery-supplied hint (metalink)
	KnownFailures int
}

// State is the scheduler's view of a Mirror: the Mirror plus counters the
// scheduler mutates as transfers bind to and complete on it.
type State struct {
	Mirror Mirror

	mu                  sync.Mutex
	runningTransfers    int
	successfulTransfers int
	failedTransfers     int
}

// NewState wraps m in a fresh State with all counters at zero.
func NewState(m Mirror) *State {
	return &State{Mirror: m}
}

// BeginTransfer increments RunningTransfers; call when a transfer binds
// to this mirror.
func (s *State) BeginTransfer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningTransfers++
}

// EndTransfer decrements RunningTransfers and bumps the success or
// failure counter; call exactly once per BeginTransfer, regardless of
// outcome (spec.md §3 "decremented on completion regardless of outcome").
func (s *State) EndTransfer(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningTransfers--
	if success {
		s.successfulTransfers++
	} else {
		s.failedTransfers++
	}
}

// RunningTransfers returns the current in-flight count bound to this
// mirror.
func (s *State) RunningTransfers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningTransfers
}

// Counters is a point-in-time snapshot of a State's counters.
type Counters struct {
	Running    int
	Successful int
	Failed     int
}

// Snapshot returns a consistent copy of the counters.
func (s *State) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{
		Running:    s.runningTransfers,
		Successful: s.successfulTransfers,
		Failed:     s.failedTransfers,
	}
}

// Pool is the ordered list of MirrorStates the scheduler selects from.
type Pool struct {
	states []*State
}

// NewPool builds a Pool from explicit Handle URLs (each given the
// highest preference, 100) followed by discovery-supplied mirrors, in
// that order, per spec.md §4.G. discovered entries keep whatever
// preference discovery assigned them (e.g. from metalink).
func NewPool(explicitURLs []string, discovered []Mirror) *Pool {
	p := &Pool{}
	for _, u := range explicitURLs {
		p.states = append(p.states, NewState(Mirror{URL: u, Preference: 100}))
	}
	for _, m := range discovered {
		p.states = append(p.states, NewState(m))
	}
	return p
}

// States returns the pool's MirrorStates in selection order.
func (p *Pool) States() []*State {
	return p.states
}

// Len reports the number of mirrors in the pool.
func (p *Pool) Len() int {
	return len(p.states)
}

// Reorder replaces the pool's ordering in place, used by the
// fastest-mirror probe (spec.md §4.M) to sort by ascending latency
// before the first metadata request. Subsequent calls after discovery
// has begun are the caller's responsibility to avoid, per spec.md
// §4.G's "subsequent reorders are not performed".
func (p *Pool) Reorder(order []*State) {
	p.states = order
}
