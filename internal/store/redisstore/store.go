package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	unreadKeyPrefix = "notif:unread:"
	unreadTTL       = 5 * time.Minute
)

// Store caches the per-user unread notification badge. The database stays
// authoritative; cache misses and cache errors fall back to a count query.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient wraps an existing client; used by tests with miniredis.
func NewWithClient(c *redis.Client) *Store {
	return &Store{rdb: c}
}

func (s *Store) Close() error { return s.rdb.Close() }

// UnreadCount returns the cached badge value and whether it was present.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int64, bool, error) {
	v, err := s.rdb.Get(ctx, unreadKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *Store) SetUnreadCount(ctx context.Context, userID string, n int64) error {
	return s.rdb.Set(ctx, unreadKeyPrefix+userID, strconv.FormatInt(n, 10), unreadTTL).Err()
}

// InvalidateUnread drops the cached badge so the next read recounts from the
// database. Called on every write touching a user's notifications.
func (s *Store) InvalidateUnread(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, unreadKeyPrefix+userID).Err()
}
