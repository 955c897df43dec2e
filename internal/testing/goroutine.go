// Package testing provides test utilities for concurrent edgeflow tests.
//
// t.Fatal and t.FailNow must not be called from spawned goroutines: they call
// runtime.Goexit, which only stops the calling goroutine. GoroutineTest
// collects errors over a channel and reports them on the test goroutine.
package testing

import (
	"context"
	"sync"
	"testing"
	"time"
)

// GoroutineTest runs functions concurrently and reports their errors on Wait.
//
// Example:
//
//	gt := testutil.NewGoroutineTest(t, 5*time.Second)
//	for i := 0; i < 8; i++ {
//	    gt.Go(func(ctx context.Context) error {
//	        return store.Put(ctx, "d1", rec)
//	    })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest whose context expires after timeout.
func NewGoroutineTest(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 256),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine and records a non-nil error.
func (gt *GoroutineTest) Go(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping error: %v", err)
			}
		}
	}()
}

// Wait blocks until every goroutine returned and fails the test if any
// reported an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()

	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Eventually polls cond every interval until it returns true or timeout
// elapses. It reports whether cond was satisfied.
func Eventually(timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
