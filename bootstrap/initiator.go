package bootstrap

import (
	"context"
	"sync"

	"github.com/nanod-io/nanod/log"
)

// Runner is the lifecycle every bootstrap attempt implements, shared by
// LegacyAttempt, LazyAttempt, and WalletAttempt via their embedded
// *Attempt plus their own Run.
type Runner interface {
	ID() string
	Mode() Mode
	Run(ctx context.Context) error
	Stop()
}

// PoolRunner is satisfied by a connection pool that needs a background
// maintenance loop (spec.md §5: "the bootstrap initiator runs 4
// dedicated long-lived threads" — three strategy threads plus one
// connection-pool runner). Implementing it is optional; a pool with no
// upkeep to do can be wired in without one.
type PoolRunner interface {
	Run(ctx context.Context, stop <-chan struct{})
}

// Initiator arbitrates bootstrap attempts across the three strategies,
// managing their threads, lifecycle, and observers (component F,
// spec.md §4.E "Bootstrap Initiator"). Grounded on les/backend.go's
// request-distributor/retrieval-manager wiring: one long-lived
// goroutine per concern, arbitrated by a shared, mutex-guarded table.
type Initiator struct {
	log *log.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	attempts map[Mode]Runner
	nextID   uint64
	stopped  bool
	running  bool

	pool    PoolRunner
	poolCh  chan struct{}
	wg      sync.WaitGroup

	observersMu sync.Mutex
	observers   []func(Runner)
}

// NewInitiator builds an Initiator. pool may be nil if the connection
// pool needs no background maintenance loop.
func NewInitiator(pool PoolRunner) *Initiator {
	in := &Initiator{
		log:      log.Root().Named("bootstrap.initiator"),
		attempts: make(map[Mode]Runner),
		pool:     pool,
		poolCh:   make(chan struct{}),
	}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Observe registers a callback invoked whenever an attempt starts
// running (spec.md §3 "Bootstrap attempt ... owned by (F)"; §2 "F ...
// observers").
func (in *Initiator) Observe(fn func(Runner)) {
	in.observersMu.Lock()
	in.observers = append(in.observers, fn)
	in.observersMu.Unlock()
}

func (in *Initiator) notify(r Runner) {
	in.observersMu.Lock()
	obs := append([]func(Runner){}, in.observers...)
	in.observersMu.Unlock()
	for _, fn := range obs {
		fn(r)
	}
}

// Start launches the three dedicated strategy threads plus the
// connection-pool runner (spec.md §5 "4 dedicated long-lived
// threads"). Safe to call once.
func (in *Initiator) Start() {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		return
	}
	in.running = true
	in.mu.Unlock()

	for _, mode := range []Mode{ModeLegacy, ModeLazy, ModeWalletLazy} {
		in.wg.Add(1)
		go in.strategyLoop(mode)
	}
	if in.pool != nil {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			in.pool.Run(context.Background(), in.poolCh)
		}()
	}
	in.log.Info("bootstrap initiator started")
}

// strategyLoop waits until an attempt of mode exists, executes its
// run() to completion with the attempts lock released, then removes it
// (spec.md §4.E "Each strategy thread waits until an attempt of its
// mode exists; executes that attempt's run() to completion with the
// attempt lock released; then removes it").
func (in *Initiator) strategyLoop(mode Mode) {
	defer in.wg.Done()
	for {
		in.mu.Lock()
		for in.attempts[mode] == nil && !in.stopped {
			in.cond.Wait()
		}
		if in.stopped {
			in.mu.Unlock()
			return
		}
		att := in.attempts[mode]
		in.mu.Unlock()

		in.notify(att)
		if err := att.Run(context.Background()); err != nil {
			in.log.Debug("bootstrap attempt ended", "mode", mode.String(), "id", att.ID(), "err", err)
		}

		in.mu.Lock()
		if in.attempts[mode] == att {
			delete(in.attempts, mode)
		}
		in.mu.Unlock()
	}
}

// Current returns the attempt currently running for mode, if any.
func (in *Initiator) Current(mode Mode) (Runner, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	a, ok := in.attempts[mode]
	return a, ok
}

// Force installs att as the running attempt for its mode, stopping
// every other currently-running attempt first (spec.md §4.E "Starting
// a forced attempt stops all current attempts first"). Returns the
// incremental_id assigned.
func (in *Initiator) Force(att Runner) uint64 {
	in.mu.Lock()
	for _, existing := range in.attempts {
		existing.Stop()
	}
	id := in.nextID
	in.nextID++
	in.attempts[att.Mode()] = att
	in.cond.Broadcast()
	in.mu.Unlock()
	return id
}

// Stop stops every running attempt and the strategy/pool threads,
// waiting for them to unwind (spec.md §5 "Bootstrap stop() is
// idempotent and cooperative").
func (in *Initiator) Stop() {
	in.mu.Lock()
	if in.stopped {
		in.mu.Unlock()
		in.wg.Wait()
		return
	}
	in.stopped = true
	for _, att := range in.attempts {
		att.Stop()
	}
	in.cond.Broadcast()
	in.mu.Unlock()

	close(in.poolCh)
	in.wg.Wait()
}
