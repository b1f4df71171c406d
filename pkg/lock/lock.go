// Package lock provides short-lived exclusive leases used to keep long-running
// administrative jobs from running twice at the same time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrHeld is returned when another holder owns the lease.
	ErrHeld = errors.New("lock: already held")
	// ErrLost is returned by Refresh once the lease expired or passed to another holder.
	ErrLost = errors.New("lock: lease lost")
)

// Lease is an acquired lock; Release is safe to call more than once. Long jobs call
// Refresh between units of work so the lease outlives its initial TTL.
type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker hands out leases keyed by name.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// LocalLocker is an in-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu      sync.Mutex
	holders map[string]localHolder
	seq     uint64
	now     func() time.Time
}

type localHolder struct {
	token     uint64
	expiresAt time.Time
}

// NewLocalLocker constructs a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{holders: make(map[string]localHolder), now: time.Now}
}

// TryAcquire grants the lease unless an unexpired holder exists.
func (l *LocalLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if holder, ok := l.holders[key]; ok && now.Before(holder.expiresAt) {
		return nil, ErrHeld
	}
	l.seq++
	token := l.seq

	l.holders[key] = localHolder{token: token, expiresAt: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  uint64
	once   sync.Once
}

func (l *localLease) Refresh(ctx context.Context, ttl time.Duration) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	now := l.locker.now()
	holder, ok := l.locker.holders[l.key]
	if !ok || holder.token != l.token || !now.Before(holder.expiresAt) {
		return ErrLost
	}
	l.locker.holders[l.key] = localHolder{token: l.token, expiresAt: now.Add(ttl)}
	return nil
}

func (l *localLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		if holder, ok := l.locker.holders[l.key]; ok && holder.token == l.token {
			delete(l.locker.holders, l.key)
		}
	})
	return nil
}
