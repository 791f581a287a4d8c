package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/predictbase/marketd/internal/domain"
)

// locker serialises mutators per market. The in-process lock is always
// taken; when a distributed LockManager is configured the "market:<id>" key
// is acquired as well so several daemons can share one ledger.
type locker struct {
	mu    sync.Mutex
	held  map[domain.MarketID]*keyLock
	dist  domain.LockManager
	ttl   time.Duration
	wait  time.Duration
	delay time.Duration
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newLocker(dist domain.LockManager, ttl, wait time.Duration) *locker {
	return &locker{
		held:  make(map[domain.MarketID]*keyLock),
		dist:  dist,
		ttl:   ttl,
		wait:  wait,
		delay: 10 * time.Millisecond,
	}
}

// Lock blocks until the market lock is held or ctx ends.
func (l *locker) Lock(ctx context.Context, id domain.MarketID) (unlock func(), err error) {
	l.mu.Lock()
	kl, ok := l.held[id]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.held[id] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, kl)
		return nil, ctx.Err()
	}

	distUnlock := func() {}
	if l.dist != nil {
		distUnlock, err = l.acquireDistributed(ctx, id)
		if err != nil {
			<-kl.ch
			l.release(id, kl)
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			distUnlock()
			<-kl.ch
			l.release(id, kl)
		})
	}, nil
}

func (l *locker) release(id domain.MarketID, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.held, id)
	}
	l.mu.Unlock()
}

func (l *locker) acquireDistributed(ctx context.Context, id domain.MarketID) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	key := "market:" + id.String()
	delay := l.delay
	for {
		unlock, err := l.dist.Acquire(ctx, key, l.ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("engine: acquire %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("engine: acquire %s: %w", key, domain.ErrLockHeld)
		case <-time.After(delay):
		}
		if delay < 200*time.Millisecond {
			delay *= 2
		}
	}
}
