package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/redis/go-redis/v9"
)

const (
	subsKeyPrefix   = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

// SubscriptionStore keeps up to maxSubsPerUser subscriptions per user, newest last.
type SubscriptionStore interface {
	Add(ctx context.Context, userID string, sub Subscription) error
	Remove(ctx context.Context, userID, endpoint string) error
	List(ctx context.Context, userID string) ([]Subscription, error)
}

// RedisSubscriptions stores each user's subscriptions as a JSON list under push:subs:{user}.
type RedisSubscriptions struct {
	rdb *redis.Client
}

func NewRedisSubscriptions(rdb *redis.Client) *RedisSubscriptions {
	return &RedisSubscriptions{rdb: rdb}
}

func (s *RedisSubscriptions) Add(ctx context.Context, userID string, sub Subscription) error {
	defer logger.DeferLogDuration("pushRedis.Add", time.Now())()
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("pushRedis.Add: %w", err)
	}
	// re-subscribing the same endpoint replaces the old entry
	if err := s.Remove(ctx, userID, sub.Endpoint); err != nil {
		return err
	}
	key := subsKeyPrefix + userID
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, string(raw))
		pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
		pipe.Expire(ctx, key, subscriptionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pushRedis.Add: %w", err)
	}
	return nil
}

func (s *RedisSubscriptions) Remove(ctx context.Context, userID, endpoint string) error {
	defer logger.DeferLogDuration("pushRedis.Remove", time.Now())()
	key := subsKeyPrefix + userID
	items, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("pushRedis.Remove: %w", err)
	}
	for _, item := range items {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			continue
		}
		// unreadable entries go too
		if err := s.rdb.LRem(ctx, key, 0, item).Err(); err != nil {
			return fmt.Errorf("pushRedis.Remove: %w", err)
		}
	}
	return nil
}

func (s *RedisSubscriptions) List(ctx context.Context, userID string) ([]Subscription, error) {
	defer logger.DeferLogDuration("pushRedis.List", time.Now())()
	items, err := s.rdb.LRange(ctx, subsKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("pushRedis.List: %w", err)
	}
	subs := make([]Subscription, 0, len(items))
	for _, item := range items {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// MemorySubscriptions is the in-process store used with -memory.
type MemorySubscriptions struct {
	mu   sync.Mutex
	subs map[string][]Subscription
}

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{subs: make(map[string][]Subscription)}
}

func (s *MemorySubscriptions) Add(_ context.Context, userID string, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := without(s.subs[userID], sub.Endpoint)
	list = append(list, sub)
	if len(list) > maxSubsPerUser {
		list = list[len(list)-maxSubsPerUser:]
	}
	s.subs[userID] = list
	return nil
}

func (s *MemorySubscriptions) Remove(_ context.Context, userID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[userID] = without(s.subs[userID], endpoint)
	return nil
}

func (s *MemorySubscriptions) List(_ context.Context, userID string) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Subscription(nil), s.subs[userID]...), nil
}

func without(list []Subscription, endpoint string) []Subscription {
	kept := make([]Subscription, 0, len(list))
	for _, sub := range list {
		if sub.Endpoint != endpoint {
			kept = append(kept, sub)
		}
	}
	return kept
}
