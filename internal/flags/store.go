package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	indexKey    = "toggles:index"
	valuePrefix = "toggles:"
)

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps operational toggles in redis so every API instance sees a flip
// immediately.
type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid toggle key")
	}
	return nil
}

// Set writes a toggle and registers it in the index.
func (s *Store) Set(ctx context.Context, key string, value bool, note string) (*Toggle, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	toggle := &Toggle{Key: key, Value: value, Note: note, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(toggle)
	if err != nil {
		return nil, fmt.Errorf("marshal toggle: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, toggleKey(key), b, 0)
	pipe.SAdd(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("set toggle: %w", err)
	}

	return toggle, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Toggle, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, toggleKey(key)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get toggle: %w", err)
	}

	var t Toggle
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, fmt.Errorf("unmarshal toggle: %w", err)
	}
	return &t, nil
}

// IsEnabled reads a toggle, treating a missing one as fallback. A redis error
// also yields fallback so an unreachable redis never blocks the hot path by
// itself.
func (s *Store) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	t, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return t.Value
}

// TradingEnabled reports whether new purchase orders may start. Defaults to
// enabled when the toggle was never set.
func (s *Store) TradingEnabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, KeyTradingEnabled, true)
}

func (s *Store) List(ctx context.Context) ([]*Toggle, error) {
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list toggles index: %w", err)
	}
	if len(keys) == 0 {
		return []*Toggle{}, nil
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			continue
		}
		redisKeys = append(redisKeys, toggleKey(k))
	}
	if len(redisKeys) == 0 {
		return []*Toggle{}, nil
	}

	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget toggles: %w", err)
	}

	out := make([]*Toggle, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var t Toggle
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			continue
		}
		out = append(out, &t)
	}

	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, toggleKey(key))
	pipe.SRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete toggle: %w", err)
	}

	return nil
}

func toggleKey(key string) string {
	return valuePrefix + key
}
