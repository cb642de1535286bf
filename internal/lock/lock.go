// Package lock provides the single-writer discipline for posting. Only one
// holder may post at a time; a holder that cannot acquire the lock within
// its timeout gets ledger.ErrLockTimeout, which callers may retry.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
)

// Locker serialises posting. Release must be called exactly once after a
// successful Acquire; calling it again is a no-op.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// DefaultKey names the global posting lock.
const DefaultKey = "chainledger:posting"

const pollInterval = 25 * time.Millisecond

// Local is an in-process Locker for a single ledger process.
type Local struct {
	sem     chan struct{}
	timeout time.Duration
}

func NewLocal(timeout time.Duration) *Local {
	return &Local{sem: make(chan struct{}, 1), timeout: timeout}
}

func (l *Local) Acquire(ctx context.Context) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.sem }) }, nil
	case <-waitCtx.Done():
		return nil, acquireErr(ctx, l.timeout)
	}
}

// acquireErr distinguishes the caller giving up from the lock timing out.
func acquireErr(parent context.Context, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %s", ledger.ErrLockTimeout, timeout)
}

// poll calls try until it reports success, the timeout elapses or ctx ends.
func poll(ctx context.Context, timeout time.Duration, try func(context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := try(waitCtx)
		if err != nil && waitCtx.Err() == nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return acquireErr(ctx, timeout)
		case <-ticker.C:
		}
	}
}
