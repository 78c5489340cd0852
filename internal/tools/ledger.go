package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Ledger remembers which actions already succeeded so that an identical action
// is not executed twice.
//
// Reserve claims a key before execution and reports false when the key is
// already claimed or done. Complete marks it done, Release gives it back after a failure.
type Ledger interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// ActionKey identifies an action by conversation, tool and canonical parameters
func ActionKey(conversationID, toolName string, params map[string]string) (string, error) {
	// ConfigStd sorts map keys, so equal maps give equal bytes
	canonical, err := sonic.ConfigStd.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

const (
	ledgerPending = "pending"
	ledgerDone    = "done"
)

// MemoryLedger is an in-process ledger
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]string)}
}

func (m *MemoryLedger) Reserve(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = ledgerPending
	return true, nil
}

func (m *MemoryLedger) Complete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = ledgerDone
	return nil
}

func (m *MemoryLedger) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[key] == ledgerPending {
		delete(m.entries, key)
	}
	return nil
}

// RedisLedger shares the ledger between processes. Reservations use SET NX with a
// short expiry so a crashed process cannot block an action forever.
type RedisLedger struct {
	client     *redis.Client
	prefix     string
	pendingTTL time.Duration
	doneTTL    time.Duration
}

// NewRedisLedger creates a ledger; doneTTL <= 0 keeps entries forever
func NewRedisLedger(client *redis.Client, doneTTL time.Duration) *RedisLedger {
	return &RedisLedger{
		client:     client,
		prefix:     "tool_action:",
		pendingTTL: 2 * time.Minute,
		doneTTL:    doneTTL,
	}
}

func (r *RedisLedger) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, ledgerPending, r.pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve action: %w", err)
	}
	return ok, nil
}

func (r *RedisLedger) Complete(ctx context.Context, key string) error {
	ttl := r.doneTTL
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+key, ledgerDone, ttl).Err(); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

func (r *RedisLedger) Release(ctx context.Context, key string) error {
	// only drop our own reservation, never a completed entry
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read action: %w", err)
	}
	if val != ledgerPending {
		return nil
	}
	return r.client.Del(ctx, r.prefix+key).Err()
}
