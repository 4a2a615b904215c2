// Package workerpool runs tasks on a fixed set of isolated execution units.
//
// Each unit is a goroutine pulling from a shared FIFO queue. A panicking task
// is contained to its unit, and a unit stuck past its task deadline is
// abandoned and replaced so pool capacity stays constant. Results of abandoned
// tasks are discarded.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// ErrTaskTimeout is returned when a task does not complete within its deadline.
	ErrTaskTimeout = errors.New("task timed out")
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool closed")
)

// Task is a unit of work executed on a pool unit.
type Task func(ctx context.Context) (any, error)

// Stats is a point-in-time snapshot of pool occupancy. Schedulers use Idle
// as the backpressure signal: claim no more work than idle units.
type Stats struct {
	Total int
	Busy  int
	Idle  int
}

type result struct {
	value    any
	err      error
	panicked bool
}

type request struct {
	ctx      context.Context
	task     Task
	resultCh chan result

	mu        sync.Mutex
	unit      *unit
	abandoned bool
}

// claim binds the request to the unit about to run it. Returns false when the
// request timed out while still queued; such requests are skipped.
func (req *request) claim(u *unit) bool {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.abandoned {
		return false
	}
	req.unit = u
	u.pool.mu.Lock()
	u.current = req
	u.pool.mu.Unlock()
	return true
}

type unit struct {
	id   int
	pool *Pool

	// guarded by pool.mu
	current   *request
	abandoned bool
	released  bool
}

// Pool is a fixed-size worker pool with FIFO dispatch.
type Pool struct {
	mu     sync.Mutex
	queue  chan *request
	units  map[int]*unit
	nextID int
	size   int
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool with the given number of units. A non-positive size
// defaults to runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		queue: make(chan *request, 2*size),
		units: make(map[int]*unit),
		size:  size,
	}
	p.mu.Lock()
	for i := 0; i < size; i++ {
		p.spawnUnit()
	}
	p.mu.Unlock()
	return p
}

// spawnUnit starts a fresh unit. Caller must hold p.mu.
func (p *Pool) spawnUnit() {
	p.nextID++
	u := &unit{id: p.nextID, pool: p}
	p.units[u.id] = u
	p.wg.Add(1)
	go u.run()
}

func (u *unit) run() {
	defer u.release()
	for req := range u.pool.queue {
		if !req.claim(u) {
			continue
		}
		res := invoke(req.ctx, req.task)
		if !u.finish(req, res) {
			return
		}
	}
}

// release marks the unit's goroutine as accounted for, exactly once. The
// abandon path releases early so shutdown does not wait on stuck tasks.
func (u *unit) release() {
	p := u.pool
	p.mu.Lock()
	if u.released {
		p.mu.Unlock()
		return
	}
	u.released = true
	p.mu.Unlock()
	p.wg.Done()
}

// finish delivers the result and restores the unit to idle. Returns false
// when the unit must exit: it was abandoned mid-task, or its task panicked
// and a replacement has been started.
func (u *unit) finish(req *request, res result) bool {
	p := u.pool
	req.mu.Lock()
	p.mu.Lock()
	if u.abandoned {
		p.mu.Unlock()
		req.mu.Unlock()
		return false
	}
	u.current = nil
	if res.panicked {
		delete(p.units, u.id)
		if !p.closed {
			p.spawnUnit()
		}
	}
	deliver := !req.abandoned
	p.mu.Unlock()
	if deliver {
		req.resultCh <- res
	}
	req.mu.Unlock()
	return !res.panicked
}

func invoke(ctx context.Context, task Task) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{
				err:      fmt.Errorf("task panicked: %v\n%s", r, debug.Stack()),
				panicked: true,
			}
		}
	}()
	value, err := task(ctx)
	return result{value: value, err: err}
}

// Execute queues the task and blocks until it completes, times out, or ctx is
// cancelled. Queued tasks run in submission order. On timeout the running
// unit is abandoned and replaced; its eventual result is discarded. A zero
// timeout disables the deadline.
func (p *Pool) Execute(ctx context.Context, task Task, timeout time.Duration) (any, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := &request{
		ctx:      taskCtx,
		task:     task,
		resultCh: make(chan result, 1),
	}

	select {
	case p.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-req.resultCh:
		return res.value, res.err
	case <-timeoutCh:
		p.abandon(req)
		return nil, ErrTaskTimeout
	case <-ctx.Done():
		p.abandon(req)
		return nil, ctx.Err()
	}
}

// abandon detaches a timed-out request. If a unit is mid-task on it, the unit
// is retired and a replacement spawned; the stuck goroutine exits whenever
// its task returns.
func (p *Pool) abandon(req *request) {
	req.mu.Lock()
	defer req.mu.Unlock()

	// The result may have landed in the race window between the timer firing
	// and this call. It is discarded either way, but the unit stays.
	select {
	case <-req.resultCh:
		return
	default:
	}

	req.abandoned = true
	p.mu.Lock()
	defer p.mu.Unlock()
	if u := req.unit; u != nil && u.current == req {
		u.abandoned = true
		delete(p.units, u.id)
		if !p.closed {
			p.spawnUnit()
		}
		if !u.released {
			u.released = true
			p.wg.Done()
		}
	}
}

// Stats reports current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy := 0
	for _, u := range p.units {
		if u.current != nil {
			busy++
		}
	}
	return Stats{Total: len(p.units), Busy: busy, Idle: len(p.units) - busy}
}

// Close stops accepting work. Units drain the queue and exit. Execute must
// not be called concurrently with or after Close.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.queue)
}

// Shutdown closes the pool and waits for units to exit, bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
