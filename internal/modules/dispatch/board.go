// README: Rider claim board: per-rider compare-and-set backed by Redis or memory.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"takeout/internal/types"
)

// Board holds at most one claim per rider. Claim is the atomic check-and-set
// that makes double-booking impossible: it returns false when the rider is
// already held by a concurrent assignment.
type Board interface {
	Claim(ctx context.Context, riderID types.ID) (bool, error)
	Release(ctx context.Context, riderID types.ID) error
	Claimed(ctx context.Context, riderID types.ID) (bool, error)
}

const claimKeyPrefix = "dispatch:rider:%s:claim"

// RedisBoard shares claims between the API process and standalone dispatcher
// workers. Claims carry no TTL; they are released on delivery completion.
type RedisBoard struct {
	redis *redis.Client
}

func NewRedisBoard(redis *redis.Client) *RedisBoard {
	return &RedisBoard{redis: redis}
}

func (b *RedisBoard) Claim(ctx context.Context, riderID types.ID) (bool, error) {
	return b.redis.SetNX(ctx, claimKey(riderID), "1", 0).Result()
}

func (b *RedisBoard) Release(ctx context.Context, riderID types.ID) error {
	return b.redis.Del(ctx, claimKey(riderID)).Err()
}

func (b *RedisBoard) Claimed(ctx context.Context, riderID types.ID) (bool, error) {
	n, err := b.redis.Exists(ctx, claimKey(riderID)).Result()
	return n == 1, err
}

func claimKey(riderID types.ID) string {
	return fmt.Sprintf(claimKeyPrefix, string(riderID))
}

// MemBoard is the single-process board used when no Redis address is
// configured, and by tests.
type MemBoard struct {
	mu     sync.Mutex
	claims map[types.ID]bool
}

func NewMemBoard() *MemBoard {
	return &MemBoard{claims: make(map[types.ID]bool)}
}

func (b *MemBoard) Claim(_ context.Context, riderID types.ID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claims[riderID] {
		return false, nil
	}
	b.claims[riderID] = true
	return true, nil
}

func (b *MemBoard) Release(_ context.Context, riderID types.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claims, riderID)
	return nil
}

func (b *MemBoard) Claimed(_ context.Context, riderID types.ID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.claims[riderID], nil
}
