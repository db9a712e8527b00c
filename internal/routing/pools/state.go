package pools

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StateStore holds the mutable round-robin cursor for each pool. The cursor
// is shared process-wide (and, with the redis implementation, fleet-wide):
// advancing it must be atomic or two concurrent routing calls can assign the
// same owner twice.
type StateStore interface {
	// NextIndex atomically advances the pool's cursor and returns the new
	// position modulo size.
	NextIndex(ctx context.Context, organizationID uuid.UUID, pool string, size int) (int, error)
}

// RedisStateStore keeps pool cursors in Redis so fairness survives restarts
// and is shared across instances.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a redis-backed state store.
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func cursorKey(organizationID uuid.UUID, pool string) string {
	return fmt.Sprintf("routing:cursor:%s:%s", organizationID, pool)
}

// NextIndex advances the cursor with INCR, which is atomic server-side.
func (s *RedisStateStore) NextIndex(ctx context.Context, organizationID uuid.UUID, pool string, size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("pool size must be positive, got %d", size)
	}
	n, err := s.client.Incr(ctx, cursorKey(organizationID, pool)).Result()
	if err != nil {
		return 0, err
	}
	return int((n - 1) % int64(size)), nil
}

// MemoryStateStore is an in-process state store for tests and the dry-run CLI.
type MemoryStateStore struct {
	mu      sync.Mutex
	cursors map[string]int64
}

// NewMemoryStateStore creates an in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{cursors: make(map[string]int64)}
}

// NextIndex advances the cursor under a short-lived lock.
func (s *MemoryStateStore) NextIndex(_ context.Context, organizationID uuid.UUID, pool string, size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("pool size must be positive, got %d", size)
	}
	key := cursorKey(organizationID, pool)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.cursors[key]
	s.cursors[key] = n + 1
	return int(n % int64(size)), nil
}

// Compile-time interface checks.
var (
	_ StateStore = (*RedisStateStore)(nil)
	_ StateStore = (*MemoryStateStore)(nil)
)
