// Package work implements the proof-of-work pool (component A) and its
// distributed front-end (component B): a fixed set of worker goroutines
// that search for a nonce whose keyed hash over a root meets a
// difficulty threshold, with fair cooperative preemption, plus a
// fan-out layer that coordinates the pool, an optional accelerator, and
// remote peer solvers for a single logical request.
//
// The worker-loop shape (fixed goroutine count, a shared mutex-guarded
// FIFO, atomic ticket for cheap preemption checks) is grounded on the
// teacher's miner/worker.go channel-driven sealing loop, generalized
// from "build one block" to "search one nonce".
package work

import (
	"container/list"
	"crypto/rand"
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/nanod-io/nanod/ledger"
	"github.com/nanod-io/nanod/log"
)

// Callback receives a work request's result: the solution nonce, or
// false if the request was cancelled (spec.md §3 "completed exactly
// once with either the solution nonce or an empty result").
type Callback func(nonce uint64, ok bool)

// request is a single pending work item (spec.md §3 "Work request").
type request struct {
	root       ledger.Root
	difficulty uint64
	callback   Callback
}

// Pool is the multi-threaded nonce search engine (component A).
type Pool struct {
	log *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending *list.List // of *request, front is the active request
	ticket  uint64     // incremented whenever the active request changes

	numThreads int
	running    int32 // atomic: 0 before Start, 1 after
	stopping   int32 // atomic: workers check this alongside ticket

	wg sync.WaitGroup

	// accelerator, if set, is tried synchronously before a request is
	// ever queued (spec.md §4.A "If an external accelerator callback
	// is installed and returns a value synchronously, it is used and
	// the request is never queued").
	accelerator func(root ledger.Root, difficulty uint64) (uint64, bool)
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithThreads overrides the worker count (0 means one per available
// core, per spec.md §4.A).
func WithThreads(n int) Option {
	return func(p *Pool) { p.numThreads = n }
}

// WithAccelerator installs a synchronous external solver consulted
// before a request is queued (spec.md §4.A, §7 "accelerator_unavailable
// (benign; falls back to pool)").
func WithAccelerator(fn func(root ledger.Root, difficulty uint64) (uint64, bool)) Option {
	return func(p *Pool) { p.accelerator = fn }
}

// NewPool constructs a Pool. Call Start to spin up worker goroutines.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		log:        log.Root().Named("work"),
		pending:    list.New(),
		numThreads: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.numThreads < 1 {
		p.numThreads = 1
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Safe to call once.
func (p *Pool) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	for i := 0; i < p.numThreads; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.log.Info("work pool started", "threads", p.numThreads)
}

// Stop signals all worker threads to exit once they drain remaining
// work (spec.md §4.A "Shutdown"), and waits for them to exit.
func (p *Pool) Stop() {
	if !atomic.CompareAndSwapInt32(&p.stopping, 0, 1) {
		p.wg.Wait()
		return
	}
	p.mu.Lock()
	p.drainAllLocked()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// drainAllLocked cancels every pending request with an empty result.
// Caller must hold p.mu.
func (p *Pool) drainAllLocked() {
	for e := p.pending.Front(); e != nil; {
		next := e.Next()
		req := p.pending.Remove(e).(*request)
		atomic.AddUint64(&p.ticket, 1)
		cb := req.callback
		go cb(0, false)
		e = next
	}
}

// Generate submits an asynchronous work request: callback fires exactly
// once, with the solution nonce or an empty result on cancel (spec.md
// §3, §4.A).
func (p *Pool) Generate(root ledger.Root, difficulty uint64, callback Callback) {
	if p.accelerator != nil {
		if nonce, ok := p.accelerator(root, difficulty); ok {
			callback(nonce, true)
			return
		}
	}

	p.mu.Lock()
	p.pending.PushBack(&request{root: root, difficulty: difficulty, callback: callback})
	p.cond.Broadcast()
	p.mu.Unlock()
}

// GenerateSync is the blocking form of Generate: it returns the
// solution nonce and true, or (0, false) if cancelled.
func (p *Pool) GenerateSync(root ledger.Root, difficulty uint64) (uint64, bool) {
	done := make(chan struct {
		nonce uint64
		ok    bool
	}, 1)
	p.Generate(root, difficulty, func(nonce uint64, ok bool) {
		done <- struct {
			nonce uint64
			ok    bool
		}{nonce, ok}
	})
	res := <-done
	return res.nonce, res.ok
}

// Cancel removes every pending request for root, invoking each
// callback with an empty result (spec.md §4.A "On cancel"). If root is
// the active (front) request, the ticket is advanced so in-flight
// searchers notice within one preemption block.
func (p *Pool) Cancel(root ledger.Root) {
	p.mu.Lock()
	if front := p.pending.Front(); front != nil && front.Value.(*request).root == root {
		atomic.AddUint64(&p.ticket, 1)
	}

	var toFire []Callback
	for e := p.pending.Front(); e != nil; {
		next := e.Next()
		req := e.Value.(*request)
		if req.root == root {
			p.pending.Remove(e)
			toFire = append(toFire, req.callback)
		}
		e = next
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, cb := range toFire {
		cb(0, false)
	}
}

// preemptionBlock is the number of nonce attempts a worker tries before
// re-checking the ticket (spec.md §4.A "in blocks of 256 iterations").
const preemptionBlock = 256

// worker is the per-thread search loop.
func (p *Pool) worker() {
	defer p.wg.Done()

	var rngState uint64
	seedRNG(&rngState)

	for {
		p.mu.Lock()
		for p.pending.Len() == 0 && atomic.LoadInt32(&p.stopping) == 0 {
			p.cond.Wait()
		}
		if p.pending.Len() == 0 {
			p.mu.Unlock()
			return // stopping, nothing left to drain
		}
		front := p.pending.Front().Value.(*request)
		ticketAtStart := atomic.LoadUint64(&p.ticket)
		p.mu.Unlock()

		if p.searchBlock(front, ticketAtStart, &rngState) {
			// Caller handled completion inside searchBlock (found or
			// preempted); loop back to pick up the (possibly new)
			// front request.
			continue
		}
	}
}

// searchBlock runs one preemption block of the search loop for req. It
// returns true if the block ended early or went stale (a solution was
// found, the pool is stopping, or the ticket changed) and false if it
// ran all iterations with no solution and the ticket unchanged; either
// way the caller loops back to re-read the front of the queue.
func (p *Pool) searchBlock(req *request, ticketAtStart uint64, rngState *uint64) bool {
	for i := 0; i < preemptionBlock; i++ {
		if atomic.LoadInt32(&p.stopping) == 1 {
			return true
		}
		nonce := xorshiftNext(rngState)
		if Validate(req.root, nonce, req.difficulty) {
			p.complete(req, nonce, ticketAtStart)
			return true
		}
	}
	// Block exhausted without a solution; re-check the ticket before
	// spending another 256 iterations on what might now be stale work.
	if atomic.LoadUint64(&p.ticket) != ticketAtStart {
		return true
	}
	return false
}

// complete finalizes a found solution: advances the ticket, pops the
// request if it is still the front entry (another thread may have
// already done this, or the request may have been cancelled
// concurrently), and invokes the callback exactly once.
func (p *Pool) complete(req *request, nonce uint64, ticketAtStart uint64) {
	p.mu.Lock()
	if atomic.LoadUint64(&p.ticket) != ticketAtStart {
		// Another thread already solved this request (or it was
		// cancelled) between our last ticket read and now.
		p.mu.Unlock()
		return
	}
	front := p.pending.Front()
	if front == nil || front.Value.(*request) != req {
		p.mu.Unlock()
		return
	}
	atomic.AddUint64(&p.ticket, 1)
	p.pending.Remove(front)
	p.mu.Unlock()

	req.callback(nonce, true)
}

// seedRNG draws a cryptographically random seed for a worker's
// thread-local xorshift generator (spec.md §4.A "xorshift, seeded from
// a cryptographic source").
func seedRNG(state *uint64) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable on this platform; fall
		// back to a fixed, clearly non-secret seed rather than leaving
		// the generator at zero (xorshift64 never advances from 0).
		*state = 0x9e3779b97f4a7c15
		return
	}
	*state = binary.LittleEndian.Uint64(b[:])
	if *state == 0 {
		*state = 0x9e3779b97f4a7c15
	}
}

// xorshiftNext advances a 64-bit xorshift generator and returns the
// next value (spec.md §4.A, §9 "injectable RNG" note applies to the
// representative sampler in bootstrap, not here — this PRNG only needs
// to be fast and well-distributed, not reproducible).
func xorshiftNext(state *uint64) uint64 {
	x := *state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return x
}
