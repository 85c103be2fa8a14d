package frame

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/memory"
)

// ErrNoWorkers is returned when a WorkerPool is requested with zero or
// negative worker count.
var ErrNoWorkers = fmt.Errorf("frame: attempting to create worker pool with less than 1 worker")

// recordTask is one node's wave-body recording job.
type recordTask struct {
	name   string
	record func() error
	result chan<- error
}

// WorkerPool records wave bodies in parallel, one task per node (spec.md
// section 5: "wave bodies may be recorded in parallel by a worker pool, one
// task per node"). Grounded on the teacher's engine/systems/job.go channel
// + sync.WaitGroup worker pool, generalized with a budget-throttle
// suspension point the teacher's job system never needed.
type WorkerPool struct {
	numWorkers int
	tasks      chan recordTask
	wg         sync.WaitGroup
	budget     *memory.Budget
}

// NewWorkerPool starts numWorkers goroutines pulling from an internal task
// channel of the given depth. budget may be nil, in which case tasks never
// throttle.
func NewWorkerPool(numWorkers, channelDepth int, budget *memory.Budget) (*WorkerPool, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelDepth < 0 {
		channelDepth = 0
	}
	p := &WorkerPool{
		numWorkers: numWorkers,
		tasks:      make(chan recordTask, channelDepth),
		budget:     budget,
	}
	p.start()
	return p, nil
}

func (p *WorkerPool) start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				p.throttleIfNeeded()
				err := t.record()
				if err != nil {
					corelog.Error("worker pool: recording %q failed: %v", t.name, err)
				}
				t.result <- err
			}
		}()
	}
}

// throttleIfNeeded yields the goroutine's turn when every tracked memory
// class is already past its soft limit, modeling spec.md section 5's
// cooperative suspension point without blocking the whole pool: Gosched
// lets other runnable goroutines (including ones whose budget has room)
// proceed first.
func (p *WorkerPool) throttleIfNeeded() {
	if p.budget == nil {
		return
	}
	classes := []memory.Class{memory.ClassDeviceLocal, memory.ClassHostVisible, memory.ClassLazilyAllocated}
	for _, c := range classes {
		soft, _ := p.budget.Limits(c)
		if p.budget.Used(c) < soft {
			return
		}
	}
	runtime.Gosched()
}

// RecordWave submits one recording task per node in the wave and blocks
// until every task completes, returning the first error encountered (if
// any), while still waiting for the remaining tasks to finish so a later
// call never races with stragglers from this one.
func (p *WorkerPool) RecordWave(ctx context.Context, nodes []string, record func(name string) error) error {
	results := make(chan error, len(nodes))
	submitted := 0
	for _, name := range nodes {
		n := name
		select {
		case p.tasks <- recordTask{name: n, record: func() error { return record(n) }, result: results}:
			submitted++
		case <-ctx.Done():
			for i := 0; i < submitted; i++ {
				<-results
			}
			return ctx.Err()
		}
	}
	var firstErr error
	for range nodes {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown closes the task channel and waits for every worker to drain it.
func (p *WorkerPool) Shutdown() {
	close(p.tasks)
	p.wg.Wait()
}
