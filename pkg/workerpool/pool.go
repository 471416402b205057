// Package workerpool provides a fixed-size worker pool used to fan out
// independent collaborator requests such as percentile preloading.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Common errors
var (
	ErrPoolClosed   = errors.New("workerpool: pool is closed")
	ErrPoolRunning  = errors.New("workerpool: pool is already running")
	ErrInvalidSize  = errors.New("workerpool: invalid pool size")
	ErrTaskPanic    = errors.New("workerpool: task panicked")
	ErrTaskCanceled = errors.New("workerpool: task canceled")
)

// Task represents a unit of work to be executed by the pool
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of workers
type Pool struct {
	size    int
	tasks   chan taskWrapper
	wg      sync.WaitGroup
	running atomic.Bool
	closed  atomic.Bool
	mu      sync.Mutex
	taskCnt int64
	errCnt  int64
}

type taskWrapper struct {
	task   Task
	result chan error
	ctx    context.Context
}

// New creates a pool with size workers; call Start before submitting
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &Pool{size: size, tasks: make(chan taskWrapper, size)}, nil
}

// Start starts the workers
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}
	if p.running.Load() {
		return ErrPoolRunning
	}
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.running.Store(true)
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for wrapper := range p.tasks {
		wrapper.result <- p.execute(wrapper)
	}
}

func (p *Pool) execute(wrapper taskWrapper) (err error) {
	atomic.AddInt64(&p.taskCnt, 1)
	defer func() {
		if r := recover(); r != nil {
			err = ErrTaskPanic
		}
		if err != nil {
			atomic.AddInt64(&p.errCnt, 1)
		}
	}()

	if wrapper.ctx.Err() != nil {
		return ErrTaskCanceled
	}
	return wrapper.task(wrapper.ctx)
}

// Submit queues a task and returns a channel that receives its error
func (p *Pool) Submit(ctx context.Context, task Task) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() || p.closed.Load() {
		return nil, ErrPoolClosed
	}

	result := make(chan error, 1)
	select {
	case p.tasks <- taskWrapper{task: task, result: result, ctx: ctx}:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run submits all tasks, waits for them and returns the first error
// Remaining tasks observe a canceled context once one of them fails
func (p *Pool) Run(ctx context.Context, tasks []Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]<-chan error, 0, len(tasks))
	var firstErr error
	for _, task := range tasks {
		ch, err := p.Submit(ctx, task)
		if err != nil {
			firstErr = err
			break
		}
		results = append(results, ch)
	}

	for _, ch := range results {
		if err := <-ch; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// Close stops accepting tasks and waits for queued ones to finish
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed.Store(true)
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.running.Store(false)
	return nil
}

// Stats holds pool counters
type Stats struct {
	Workers    int
	TasksRun   int64
	TaskErrors int64
	Running    bool
}

// Stats returns the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.size,
		TasksRun:   atomic.LoadInt64(&p.taskCnt),
		TaskErrors: atomic.LoadInt64(&p.errCnt),
		Running:    p.running.Load(),
	}
}

// RunTasks runs tasks on a temporary pool of size workers
func RunTasks(ctx context.Context, size int, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if size > len(tasks) {
		size = len(tasks)
	}
	p, err := New(size)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	defer p.Close()
	return p.Run(ctx, tasks)
}
