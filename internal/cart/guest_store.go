package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type guestKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(sessionID string) string
}

// GuestStore keeps anonymous carts as JSON documents in Redis. Every write
// refreshes the TTL so active sessions do not expire.
type GuestStore struct {
	kv  guestKV
	ttl time.Duration
}

// NewGuestStore binds the guest cart store to redis.
func NewGuestStore(kv guestKV, ttl time.Duration) *GuestStore {
	return &GuestStore{kv: kv, ttl: ttl}
}

func (s *GuestStore) Load(ctx context.Context, owner Owner) ([]types.CartItem, error) {
	if owner.GuestSession == "" {
		return nil, fmt.Errorf("guest cart requires a session id")
	}
	raw, err := s.kv.Get(ctx, s.kv.GuestCartKey(owner.GuestSession))
	if redis.IsNil(err) {
		return []types.CartItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	var items []types.CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	return types.CloneItems(items), nil
}

func (s *GuestStore) Save(ctx context.Context, owner Owner, items []types.CartItem) error {
	if owner.GuestSession == "" {
		return fmt.Errorf("guest cart requires a session id")
	}
	key := s.kv.GuestCartKey(owner.GuestSession)
	if len(items) == 0 {
		return s.kv.Del(ctx, key)
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	return s.kv.Set(ctx, key, payload, s.ttl)
}

func (s *GuestStore) Delete(ctx context.Context, owner Owner) error {
	if owner.GuestSession == "" {
		return nil
	}
	return s.kv.Del(ctx, s.kv.GuestCartKey(owner.GuestSession))
}
