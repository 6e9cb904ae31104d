// Package lease provides exclusive, expiring leases so only one process works on a key.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotHeld is returned when refreshing or releasing a lease owned by someone else.
var ErrNotHeld = errors.New("lease not held")

// Locker grants leases. Acquire returns false when another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

// Memory is a Locker for a single process.
type Memory struct {
	mu     sync.Mutex
	owner  string
	leases map[string]memoryLease
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		owner:  uuid.NewString(),
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if current, ok := m.leases[key]; ok && current.expiresAt.After(now) {
		return false, nil
	}

	m.leases[key] = memoryLease{owner: m.owner, expiresAt: now.Add(ttl)}

	return true, nil
}

func (m *Memory) Refresh(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	current, ok := m.leases[key]
	if !ok || current.owner != m.owner || !current.expiresAt.After(now) {
		return ErrNotHeld
	}

	m.leases[key] = memoryLease{owner: m.owner, expiresAt: now.Add(ttl)}

	return nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.leases[key]
	if !ok || current.owner != m.owner {
		return ErrNotHeld
	}

	delete(m.leases, key)

	return nil
}
