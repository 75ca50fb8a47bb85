// Package worker runs blocking file jobs off the goroutines that receive
// messages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is one unit of blocking work. It must honour ctx between steps.
type Task func(ctx context.Context) error

// Result reports how a task ended.
type Result struct {
	JobID    string
	Name     string
	Err      error
	Duration time.Duration
}

// DoneHook is called from the worker goroutine after every task.
type DoneHook func(Result)

type request struct {
	ctx    context.Context
	id     string
	name   string
	task   Task
	result chan Result
}

// Pool runs tasks on a fixed number of goroutines.
type Pool struct {
	workers int
	timeout time.Duration
	logger  logrus.FieldLogger
	onDone  DoneHook

	requests chan request
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool returns a started pool. A non-positive timeout disables the per
// task deadline.
func NewPool(workers int, timeout time.Duration, logger logrus.FieldLogger, onDone DoneHook) *Pool {
	if workers <= 0 {
		workers = 4
	}
	p := &Pool{
		workers:  workers,
		timeout:  timeout,
		logger:   logger,
		onDone:   onDone,
		requests: make(chan request, workers*4),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker()
		}()
	}
	return p
}

// Submit queues task and returns a channel that receives exactly one Result.
// Submit blocks while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, name string, task Task) (<-chan Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	req := request{
		ctx:    ctx,
		id:     uuid.NewString(),
		name:   name,
		task:   task,
		result: make(chan Result, 1),
	}
	select {
	case p.requests <- req:
		return req.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run submits task and waits for its result.
func (p *Pool) Run(ctx context.Context, name string, task Task) Result {
	ch, err := p.Submit(ctx, name, task)
	if err != nil {
		return Result{Name: name, Err: err}
	}
	return <-ch
}

// Stop refuses new tasks and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.requests)
	p.mu.Unlock()
	p.wg.Wait()
}

// worker processes requests from the channel.
func (p *Pool) worker() {
	for req := range p.requests {
		res := p.execute(req)
		req.result <- res
		if p.onDone != nil {
			p.onDone(res)
		}
	}
}

func (p *Pool) execute(req request) (res Result) {
	start := time.Now()
	res = Result{JobID: req.id, Name: req.name}
	log := p.logger.WithFields(logrus.Fields{"job_id": req.id, "task": req.name})

	ctx := req.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task panicked: %v", r)
			log.Errorf("task panicked: %v", r)
		}
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		log.Warnf("task skipped: %v", err)
		return res
	}

	log.Debug("task started")
	res.Err = req.task(ctx)
	if res.Err != nil {
		log.Warnf("task failed: %v", res.Err)
	} else {
		log.WithField("duration", time.Since(start)).Info("task completed")
	}
	return res
}
