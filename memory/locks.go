package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wagerbot/service"
)

// lockTable hands out exclusive per-key locks with a bounded wait. Each key
// maps to a one-slot channel; holding the slot is holding the lock. A slot is
// dropped once nobody holds or waits for it, so the table only tracks keys in use.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int // holder plus waiters
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (l *lockTable) join(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *lockTable) leave(key string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// acquire waits at most timeout for key
func (l *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	s := l.join(key)

	select {
	case s.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-timer.C:
		l.leave(key, s)
		return fmt.Errorf("waited %s for %s: %w", timeout, key, service.ErrContentionTimeout)
	case <-ctx.Done():
		l.leave(key, s)
		return fmt.Errorf("waiting for %s: %w", key, ctx.Err())
	}
}

func (l *lockTable) release(key string) {
	l.mu.Lock()
	s, ok := l.slots[key]
	l.mu.Unlock()
	if !ok {
		panic("memory: release of unheld lock " + key)
	}

	select {
	case <-s.ch:
	default:
		panic("memory: release of unheld lock " + key)
	}
	l.leave(key, s)
}

func accountKey(id int64) string          { return fmt.Sprintf("account:%d", id) }
func telegramKey(telegramID int64) string { return fmt.Sprintf("telegram:%d", telegramID) }
func matchKey(id int64) string            { return fmt.Sprintf("match:%d", id) }
func transactionKey(id int64) string      { return fmt.Sprintf("transaction:%d", id) }
func refKey(ref string) string            { return "ref:" + ref }
