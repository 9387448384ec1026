// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"context"
	"runtime"
	"sync"
)

// decodePool runs CPU-bound decode work on a fixed set of workers so a large
// tile batch cannot oversubscribe the process. Tasks are queued FIFO.
type decodePool struct {
	tasks     chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newDecodePool(workers int) *decodePool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &decodePool{tasks: make(chan func(), workers*4)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *decodePool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// submit enqueues a task, blocking while the queue is full.
func (p *decodePool) submit(task func()) {
	p.tasks <- task
}

// close stops accepting tasks and waits for queued work to drain.
func (p *decodePool) close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}

// DecodeFuture is the pending result of an asynchronous tile decode. A future
// resolves exactly once; Wait can be called any number of times, from any
// goroutine.
type DecodeFuture struct {
	done chan struct{}
	arr  *Array
	err  error
}

func newDecodeFuture() *DecodeFuture {
	return &DecodeFuture{done: make(chan struct{})}
}

func (f *DecodeFuture) resolve(arr *Array, err error) {
	f.arr = arr
	f.err = err
	close(f.done)
}

// Wait blocks until the decode completes or ctx is done. Cancelling the
// context abandons this Wait only; the decode itself still runs and a later
// Wait observes its result.
func (f *DecodeFuture) Wait(ctx context.Context) (*Array, error) {
	select {
	case <-f.done:
		return f.arr, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
