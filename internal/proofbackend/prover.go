// prover.go - Asynchronous proof generation pool.
//
// Proof generation takes seconds of CPU; callers submit work and await a
// future instead of blocking a request path. Cancellation is cooperative:
// a job cancelled between submission and pickup never starts proving.

package proofbackend

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/consensys/gnark/frontend"
)

// ErrProverClosed signals a submit after shutdown.
var ErrProverClosed = errors.New("prover pool closed")

// Future is the handle for a pending proof.
type Future struct {
	done  chan struct{}
	proof []byte
	err   error
}

// Wait blocks until the proof is ready, the job fails, or ctx expires.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.proof, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settle(proof []byte, err error) {
	f.proof = proof
	f.err = err
	close(f.done)
}

type proofJob struct {
	ctx        context.Context
	keys       Keys
	assignment frontend.Circuit
	fut        *Future
}

// Prover runs proof generation on a fixed worker pool.
type Prover struct {
	backend Backend
	jobs    chan *proofJob
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewProver starts a pool with the given number of workers (0 means one per
// CPU).
func NewProver(backend Backend, workers int) *Prover {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Prover{
		backend: backend,
		jobs:    make(chan *proofJob, workers*4),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Prover) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		// Cooperative cancellation point: drop jobs whose caller gave up
		// before proving started.
		if err := job.ctx.Err(); err != nil {
			job.fut.settle(nil, err)
			continue
		}
		proof, err := p.backend.Prove(job.ctx, job.keys, job.assignment)
		job.fut.settle(proof, err)
	}
}

// Submit queues a proof job and returns its future.
func (p *Prover) Submit(ctx context.Context, keys Keys, assignment frontend.Circuit) *Future {
	fut := &Future{done: make(chan struct{})}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fut.settle(nil, ErrProverClosed)
		return fut
	}
	p.jobs <- &proofJob{ctx: ctx, keys: keys, assignment: assignment, fut: fut}
	p.mu.Unlock()
	return fut
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (p *Prover) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
