package vulkan

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/spices/engine/core"
)

/**
 * @brief The secondary command buffers owned by one pool thread. Each frame in
 * flight has its own ring so recording frame N never touches buffers that
 * frame N-1 may still execute.
 */
type ThreadCommandBuffers struct {
	ThreadID uint32

	dev    Device
	name   string
	frames [MaxFramesInFlight][]*CommandBuffer
	used   [MaxFramesInFlight]int

	// current is the buffer opened by a bulk fan-out.
	current *CommandBuffer
	err     error
}

// Acquire hands out the next unused secondary of frame, allocating on demand.
// Only the owning thread calls it while the pool is recording.
func (t *ThreadCommandBuffers) Acquire(frame uint32) (*CommandBuffer, error) {
	if frame >= MaxFramesInFlight {
		return nil, errors.Wrapf(ErrFramesInFlight, "frame %d", frame)
	}
	if t.used[frame] == len(t.frames[frame]) {
		buffers, err := NewCommandBuffers(t.dev, false, 1, fmt.Sprintf("%s-t%d-f%d", t.name, t.ThreadID, frame))
		if err != nil {
			return nil, err
		}
		t.frames[frame] = append(t.frames[frame], buffers[0])
	}
	cb := t.frames[frame][t.used[frame]]
	t.used[frame]++
	return cb, nil
}

// Allocated returns how many secondaries the thread holds for frame.
func (t *ThreadCommandBuffers) Allocated(frame uint32) int {
	return len(t.frames[frame])
}

func (t *ThreadCommandBuffers) free() {
	for i := range t.frames {
		for _, cb := range t.frames[i] {
			cb.Free(t.dev)
		}
		t.frames[i] = nil
		t.used[i] = 0
	}
}

/**
 * @brief The worker pool that records secondary command buffers. Every thread
 * is parameterized with its ThreadCommandBuffers.
 */
type CmdThreadPool struct {
	*core.ThreadPool[*ThreadCommandBuffers]

	dev Device
	mu  sync.Mutex
	// every set ever handed to a thread, evicted ones included
	all []*ThreadCommandBuffers
}

func NewCmdThreadPool(dev Device, name string) *CmdThreadPool {
	p := &CmdThreadPool{dev: dev}
	p.ThreadPool = core.NewThreadPool(name, func(threadID uint32) *ThreadCommandBuffers {
		t := &ThreadCommandBuffers{ThreadID: threadID, dev: dev, name: name}
		p.mu.Lock()
		p.all = append(p.all, t)
		p.mu.Unlock()
		return t
	})
	return p
}

// BeginFrame waits for outstanding work and recycles every secondary of frame.
func (p *CmdThreadPool) BeginFrame(frame uint32) {
	p.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.all {
		t.used[frame] = 0
		t.current = nil
		t.err = nil
	}
}

// RecordAsync records fn into a fresh secondary on whichever thread picks the task up.
func (p *CmdThreadPool) RecordAsync(frame uint32, inheritance *CommandBufferInheritance, fn func(cmd *CommandBuffer) error) *core.Future[*CommandBuffer] {
	return core.SubmitWithError(p.ThreadPool, func(t *ThreadCommandBuffers) (*CommandBuffer, error) {
		cb, err := t.Acquire(frame)
		if err != nil {
			return nil, err
		}
		if err := cb.Begin(p.dev, true, inheritance != nil, false, inheritance); err != nil {
			return nil, err
		}
		if err := fn(cb); err != nil {
			return nil, err
		}
		if err := cb.End(p.dev); err != nil {
			return nil, err
		}
		return cb, nil
	})
}

// Record is RecordAsync followed by waiting on the future.
func (p *CmdThreadPool) Record(frame uint32, inheritance *CommandBufferInheritance, fn func(cmd *CommandBuffer) error) (*CommandBuffer, error) {
	return p.RecordAsync(frame, inheritance, fn).Get()
}

/**
 * @brief One bulk fan-out: a secondary open on every pool thread, tasks striped
 * by index onto threads ordered by id, buffers returned in thread id order.
 */
type Fanout struct {
	pool    *CmdThreadPool
	threads []core.ThreadParam[*ThreadCommandBuffers]
	wg      sync.WaitGroup
	mu      sync.Mutex
	err     error
}

func (f *Fanout) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// BeginFanout opens one secondary per live thread for frame.
func (p *CmdThreadPool) BeginFanout(frame uint32, inheritance *CommandBufferInheritance) (*Fanout, error) {
	f := &Fanout{pool: p, threads: p.ThreadParams()}
	if len(f.threads) == 0 {
		return nil, core.ErrNoWorkers
	}
	f.broadcast(func(t *ThreadCommandBuffers) error {
		cb, err := t.Acquire(frame)
		if err != nil {
			return err
		}
		if err := cb.Begin(p.dev, true, inheritance != nil, false, inheritance); err != nil {
			return err
		}
		t.current = cb
		return nil
	})
	f.wg.Wait()
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *Fanout) broadcast(fn func(t *ThreadCommandBuffers) error) {
	for _, tp := range f.threads {
		f.submitTo(tp.ID, fn)
	}
}

func (f *Fanout) submitTo(threadID uint32, fn func(t *ThreadCommandBuffers) error) {
	f.wg.Add(1)
	err := f.pool.SubmitLightweightTaskTo(threadID, func(t *ThreadCommandBuffers) {
		defer f.wg.Done()
		if err := fn(t); err != nil {
			f.fail(err)
		}
	})
	if err != nil {
		f.wg.Done()
		f.fail(err)
	}
}

func (f *Fanout) Threads() int {
	return len(f.threads)
}

// ThreadFor returns the thread id task index i is striped onto.
func (f *Fanout) ThreadFor(i int) uint32 {
	return f.threads[i%len(f.threads)].ID
}

// Submit queues fn for task index i on the thread ThreadFor(i).
func (f *Fanout) Submit(i int, fn func(cmd *CommandBuffer) error) {
	f.submitTo(f.ThreadFor(i), func(t *ThreadCommandBuffers) error {
		if t.current == nil {
			return errors.Wrapf(ErrCommandBufferState, "thread %d has no open secondary", t.ThreadID)
		}
		return fn(t.current)
	})
}

// End waits for every task, closes every secondary and returns them by ascending thread id.
func (f *Fanout) End() ([]*CommandBuffer, error) {
	f.wg.Wait()
	f.broadcast(func(t *ThreadCommandBuffers) error {
		if t.current == nil {
			return nil
		}
		return t.current.End(f.pool.dev)
	})
	f.wg.Wait()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*CommandBuffer, 0, len(f.threads))
	for _, tp := range f.threads {
		if tp.Param.current != nil {
			out = append(out, tp.Param.current)
		}
	}
	return out, nil
}

// Destroy shuts the pool down and frees every secondary it allocated.
func (p *CmdThreadPool) Destroy() {
	p.Shutdown()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.all {
		t.free()
	}
	p.all = nil
}
