package auth

import (
	"context"
	"sync"
)

type blocklistKey struct{}

// Blocklist holds tokens that were revoked before they expired. Tokens are
// keyed by session ID, the `jti` claim.
type Blocklist interface {
	// IsBlocked checks if a token with the given key is blocked.
	IsBlocked(ctx context.Context, key string) (bool, error)

	// Block adds a token to the blocklist.
	Block(ctx context.Context, key string) error
}

// IsBlocked checks if a token is blocked by the blocklist on the context, if
// there is one.
func IsBlocked(ctx context.Context, key string) (bool, error) {
	if bl, ok := ctx.Value(blocklistKey{}).(Blocklist); ok {
		return bl.IsBlocked(ctx, key)
	}
	return false, nil
}

// WithBlockist adds a blocklist to the context.
func WithBlockist(ctx context.Context, bl Blocklist) context.Context {
	return context.WithValue(ctx, blocklistKey{}, bl)
}

// NewMemoryBlocklist returns a process local blocklist.
func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{keys: map[string]struct{}{}}
}

// MemoryBlocklist is a Blocklist kept in memory.
type MemoryBlocklist struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func (b *MemoryBlocklist) IsBlocked(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.keys[key]
	return ok, nil
}

func (b *MemoryBlocklist) Block(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[key] = struct{}{}
	return nil
}
