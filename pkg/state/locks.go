package state

import (
	"context"
	"sync"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// JobLocks provides per-job mutual exclusion within one process. Holding the
// lock of a job from its state read to its state write turns the default
// last-writer-wins accounting into serialized accounting.
type JobLocks struct {
	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	ch   chan struct{}
	refs int
}

// NewJobLocks creates an empty lock table.
func NewJobLocks() *JobLocks {
	return &JobLocks{locks: make(map[string]*jobLock)}
}

// Lock blocks until the lock of jobID is held or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (l *JobLocks) Lock(ctx context.Context, jobID string) (func(), error) {
	l.mu.Lock()
	jl, ok := l.locks[jobID]
	if !ok {
		jl = &jobLock{ch: make(chan struct{}, 1)}
		l.locks[jobID] = jl
	}
	jl.refs++
	l.mu.Unlock()

	select {
	case jl.ch <- struct{}{}:
		return func() { l.unlock(jobID, jl, true) }, nil
	case <-ctx.Done():
		l.unlock(jobID, jl, false)
		return nil, nebulaerrors.Wrap(ctx.Err(), nebulaerrors.ErrorTypeTimeout, "waiting for job lock").
			WithDetail("job_id", jobID)
	}
}

func (l *JobLocks) unlock(jobID string, jl *jobLock, held bool) {
	if held {
		<-jl.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	jl.refs--
	if jl.refs == 0 {
		delete(l.locks, jobID)
	}
}

// Held returns the number of jobs that currently have a holder or waiter.
func (l *JobLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
