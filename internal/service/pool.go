// internal/service/pool.go
package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SessionPool bounds how many sessions run at once. Submissions never
// block the caller: each submitted session waits for a slot on its own
// goroutine, so a scheduler tick can dispatch and return immediately
// while the shared automation endpoint stays protected.
type SessionPool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewSessionPool(maxConcurrent int) *SessionPool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &SessionPool{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Submit schedules run to execute once a slot frees up. A cancelled
// context abandons the session before it acquires a slot.
func (p *SessionPool) Submit(ctx context.Context, run func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		run(ctx)
	}()
}

// Wait blocks until every submitted session has finished. Used on
// shutdown and in tests.
func (p *SessionPool) Wait() {
	p.wg.Wait()
}
