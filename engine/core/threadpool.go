package core

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type PoolMode int

const (
	// PoolModeFixed keeps the threads spawned by Start until shutdown.
	PoolModeFixed PoolMode = iota
	// PoolModeCached grows on backlog and evicts threads idle for longer than the idle timeout.
	PoolModeCached
)

func (m PoolMode) String() string {
	switch m {
	case PoolModeFixed:
		return "fixed"
	case PoolModeCached:
		return "cached"
	default:
		return "unknown"
	}
}

// ParsePoolMode maps a configuration string onto a PoolMode.
func ParsePoolMode(s string) (PoolMode, error) {
	switch s {
	case "", "fixed":
		return PoolModeFixed, nil
	case "cached":
		return PoolModeCached, nil
	}
	return PoolModeFixed, errors.Wrapf(ErrInvalidConfig, "unknown pool mode %q", s)
}

const DefaultThreadIdleTimeout = 60 * time.Second

// cached threads re-check their idle time at least this often
const idleCheckInterval = time.Second

// ThreadCeiling is the hard limit a cached pool grows to.
func ThreadCeiling() int {
	return runtime.NumCPU()
}

type poolThread[P any] struct {
	id         uint32
	param      P
	queue      []func(P)
	inTask     bool
	lastActive time.Time
}

// ThreadParam pairs a worker id with the value handed to its tasks.
type ThreadParam[P any] struct {
	ID    uint32
	Param P
}

/**
 * @brief A worker pool where every thread owns a value of type P (for example a
 * secondary command buffer) that is passed to each task it executes.
 * Tasks come from a shared queue or from the thread's private queue.
 */
type ThreadPool[P any] struct {
	name  string
	param func(threadID uint32) P

	mu        sync.Mutex
	taskCond  *sync.Cond
	stateCond *sync.Cond

	threads map[uint32]*poolThread[P]
	queue   []func(P)
	ids     *IDAllocator

	mode        PoolMode
	idleTimeout time.Duration
	initThreads int
	maxThreads  int
	idle        int
	running     bool
	done        chan struct{}
}

/**
 * NewThreadPool creates a stopped pool. param is invoked once per spawned
 * thread, under the pool lock, to build the value its tasks receive.
 */
func NewThreadPool[P any](name string, param func(threadID uint32) P) *ThreadPool[P] {
	p := &ThreadPool[P]{
		name:        name,
		param:       param,
		threads:     make(map[uint32]*poolThread[P]),
		ids:         NewIDAllocator(ThreadCeiling()),
		mode:        PoolModeFixed,
		idleTimeout: DefaultThreadIdleTimeout,
	}
	p.taskCond = sync.NewCond(&p.mu)
	p.stateCond = sync.NewCond(&p.mu)
	return p
}

// SetMode only applies while the pool is stopped.
func (p *ThreadPool[P]) SetMode(mode PoolMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		LogWarn("thread pool %s: cannot change mode while running", p.name)
		return
	}
	p.mode = mode
}

// SetThreadIdleTimeout only applies while the pool is stopped.
func (p *ThreadPool[P]) SetThreadIdleTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return ErrNegativeIdleTimeout
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		LogWarn("thread pool %s: cannot change idle timeout while running", p.name)
		return nil
	}
	p.idleTimeout = timeout
	return nil
}

// Start spawns n persistent worker threads.
func (p *ThreadPool[P]) Start(n int) error {
	if n < 1 {
		return ErrNoWorkers
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPoolRunning
	}

	p.running = true
	p.initThreads = n
	p.maxThreads = max(n, ThreadCeiling())
	p.done = make(chan struct{})
	for i := 0; i < n; i++ {
		p.spawnLocked()
	}

	if p.mode == PoolModeCached {
		go p.idleTicker(p.done)
	}
	LogDebug("thread pool %s started with %d threads (%s)", p.name, n, p.mode)
	return nil
}

func (p *ThreadPool[P]) idleTicker(done <-chan struct{}) {
	interval := idleCheckInterval
	if p.idleTimeout > 0 && p.idleTimeout < interval {
		interval = p.idleTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.taskCond.Broadcast()
			p.mu.Unlock()
		}
	}
}

func (p *ThreadPool[P]) spawnLocked() {
	t := &poolThread[P]{
		lastActive: time.Now(),
	}
	t.id = p.ids.Acquire(t)
	if p.param != nil {
		t.param = p.param(t.id)
	}
	p.threads[t.id] = t
	p.idle++
	go p.threadFunc(t)
}

func (p *ThreadPool[P]) removeLocked(t *poolThread[P]) {
	delete(p.threads, t.id)
	p.idle--
	if err := p.ids.Release(t.id); err != nil {
		LogWarn("thread pool %s: %s", p.name, err.Error())
	}
	p.stateCond.Broadcast()
}

func (p *ThreadPool[P]) threadFunc(t *poolThread[P]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for len(t.queue) == 0 && len(p.queue) == 0 {
			if !p.running {
				p.removeLocked(t)
				return
			}
			if p.mode == PoolModeCached &&
				len(p.threads) > p.initThreads &&
				time.Since(t.lastActive) >= p.idleTimeout {
				LogDebug("thread pool %s: evicting idle thread %d", p.name, t.id)
				p.removeLocked(t)
				return
			}
			p.taskCond.Wait()
		}

		var task func(P)
		if len(t.queue) > 0 {
			task = t.queue[0]
			t.queue[0] = nil
			t.queue = t.queue[1:]
		} else {
			task = p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
		}
		t.inTask = true
		p.idle--
		p.mu.Unlock()

		p.execute(t, task)

		p.mu.Lock()
		p.idle++
		t.inTask = false
		t.lastActive = time.Now()
		p.stateCond.Broadcast()
	}
}

func (p *ThreadPool[P]) execute(t *poolThread[P], task func(P)) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			LogError("thread pool %s: task on thread %d panicked: %v", p.name, t.id, r)
		}
	}()
	task(t.param)
}

func (p *ThreadPool[P]) enqueue(task func(P)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrPoolNotRunning
	}
	p.queue = append(p.queue, task)
	if p.mode == PoolModeCached && len(p.queue) > p.idle && len(p.threads) < p.maxThreads {
		p.spawnLocked()
	}
	p.taskCond.Signal()
	return nil
}

/**
 * Submit enqueues fn on the shared queue and returns a future resolved with
 * its return value. A panic inside fn resolves the future with ErrTaskPanicked.
 */
func Submit[P, R any](p *ThreadPool[P], fn func(P) R) *Future[R] {
	f := newFuture[R]()
	var zero R
	if fn == nil {
		f.resolve(zero, ErrNilTask)
		return f
	}
	task := func(param P) {
		defer func() {
			if r := recover(); r != nil {
				f.resolve(zero, errors.Wrapf(ErrTaskPanicked, "%v", r))
			}
		}()
		f.resolve(fn(param), nil)
	}
	if err := p.enqueue(task); err != nil {
		f.resolve(zero, err)
	}
	return f
}

// SubmitWithError is Submit for tasks that can fail; fn's error resolves the future.
func SubmitWithError[P, R any](p *ThreadPool[P], fn func(P) (R, error)) *Future[R] {
	f := newFuture[R]()
	var zero R
	if fn == nil {
		f.resolve(zero, ErrNilTask)
		return f
	}
	task := func(param P) {
		defer func() {
			if r := recover(); r != nil {
				f.resolve(zero, errors.Wrapf(ErrTaskPanicked, "%v", r))
			}
		}()
		f.resolve(fn(param))
	}
	if err := p.enqueue(task); err != nil {
		f.resolve(zero, err)
	}
	return f
}

// SubmitTask is Submit for tasks without a result.
func (p *ThreadPool[P]) SubmitTask(fn func(P)) *Future[struct{}] {
	if fn == nil {
		return Submit[P, struct{}](p, nil)
	}
	return Submit(p, func(param P) struct{} {
		fn(param)
		return struct{}{}
	})
}

// SubmitLightweightTaskTo pushes fn onto the private queue of one thread.
func (p *ThreadPool[P]) SubmitLightweightTaskTo(threadID uint32, fn func(P)) error {
	if fn == nil {
		return ErrNilTask
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrPoolNotRunning
	}
	t, ok := p.threads[threadID]
	if !ok {
		return errors.Wrapf(ErrUnknownThread, "thread %d in pool %s", threadID, p.name)
	}
	t.queue = append(t.queue, fn)
	p.taskCond.Broadcast()
	return nil
}

// SubmitLightweightTaskForEach pushes fn onto the private queue of every thread.
func (p *ThreadPool[P]) SubmitLightweightTaskForEach(fn func(P)) error {
	if fn == nil {
		return ErrNilTask
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrPoolNotRunning
	}
	for _, t := range p.threads {
		t.queue = append(t.queue, fn)
	}
	p.taskCond.Broadcast()
	return nil
}

func (p *ThreadPool[P]) quiescedLocked() bool {
	if p.idle != len(p.threads) || len(p.queue) != 0 {
		return false
	}
	for _, t := range p.threads {
		if len(t.queue) != 0 || t.inTask {
			return false
		}
	}
	return true
}

// Wait blocks until every thread is idle and every queue is empty.
func (p *ThreadPool[P]) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.quiescedLocked() {
		p.stateCond.Wait()
	}
}

/**
 * Shutdown stops accepting work, lets the threads drain the queues and blocks
 * until every thread has left the pool.
 */
func (p *ThreadPool[P]) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.done)
	p.taskCond.Broadcast()
	for len(p.threads) > 0 {
		p.stateCond.Wait()
	}
	LogDebug("thread pool %s shut down", p.name)
}

func (p *ThreadPool[P]) GetThreadsCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

func (p *ThreadPool[P]) GetIdleThreadSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// GetTasks returns the tasks waiting in the shared and private queues.
func (p *ThreadPool[P]) GetTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	for _, t := range p.threads {
		n += len(t.queue)
	}
	return n
}

func (p *ThreadPool[P]) GetInitThreadSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initThreads
}

func (p *ThreadPool[P]) GetPoolMode() PoolMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *ThreadPool[P]) GetThreadIdleTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idleTimeout
}

func (p *ThreadPool[P]) IsPoolRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ThreadParams returns every live thread with its value, ordered by thread id.
func (p *ThreadPool[P]) ThreadParams() []ThreadParam[P] {
	p.mu.Lock()
	out := make([]ThreadParam[P], 0, len(p.threads))
	for id, t := range p.threads {
		out = append(out, ThreadParam[P]{ID: id, Param: t.param})
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
