package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	lockScopeProject     = "project"
	lockScopeAttestation = "attestation"
	lockScopeHolder      = "holder"
	lockScopeLot         = "lot"
)

func ProjectLockKey(projectID string) string {
	return lockKey(lockScopeProject, projectID)
}

func AttestationLockKey(attestationID string) string {
	return lockKey(lockScopeAttestation, attestationID)
}

func HolderLockKey(holder string) string {
	return lockKey(lockScopeHolder, holder)
}

func LotLockKey(tokenID string) string {
	return lockKey(lockScopeLot, tokenID)
}

func lockKey(scope string, id string) string {
	return scope + ":" + strings.TrimSpace(id)
}

// NormalizeLockKeys trims, dedupes, and sorts keys into the global
// acquisition order.
func NormalizeLockKeys(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || strings.HasSuffix(key, ":") {
			return nil, fmt.Errorf("core: lock key is required")
		}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("core: at least one lock key is required")
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// MemoryRecordLocker is a single-process RecordLocker. Waiters block until
// the key is released or their context ends. The ttl argument is ignored:
// handles are always released explicitly.
type MemoryRecordLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	token chan struct{}
	refs  int
}

func NewMemoryRecordLocker() *MemoryRecordLocker {
	return &MemoryRecordLocker{slots: make(map[string]*lockSlot)}
}

func (l *MemoryRecordLocker) AcquireAll(ctx context.Context, keys []string, _ time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: record locker is not configured")
	}
	normalized, err := NormalizeLockKeys(keys)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	held := make([]string, 0, len(normalized))
	for _, key := range normalized {
		if err := l.acquire(ctx, key); err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				l.release(held[i], true)
			}
			return nil, err
		}
		held = append(held, key)
	}
	return &memoryLockHandle{locker: l, keys: held}, nil
}

func (l *MemoryRecordLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{token: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, false)
		return ctx.Err()
	}
}

func (l *MemoryRecordLocker) release(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	if held {
		<-slot.token
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(l.slots, key)
	}
}

// Held reports whether key is currently locked. Intended for tests and
// diagnostics.
func (l *MemoryRecordLocker) Held(key string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[strings.TrimSpace(key)]
	return ok && len(slot.token) > 0
}

type memoryLockHandle struct {
	locker *MemoryRecordLocker
	keys   []string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		for i := len(h.keys) - 1; i >= 0; i-- {
			h.locker.release(h.keys[i], true)
		}
	})
	return nil
}

var _ RecordLocker = (*MemoryRecordLocker)(nil)
