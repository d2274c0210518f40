package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinyphp/chat-sub002/internal/models"
)

const (
	presenceTTL = 10 * time.Minute
	typingTTL   = time.Minute
)

// RedisStore keeps presence and typing state in Redis sorted sets scored by
// unix milliseconds, so range queries double as time filters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis presence store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for other consumers, such as
// the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// onlineKey returns the key for a room's online-member sorted set.
func onlineKey(roomID int64) string {
	return fmt.Sprintf("presence:%d:online", roomID)
}

// typingKey returns the key for a room's typing-event sorted set.
func typingKey(roomID int64) string {
	return fmt.Sprintf("presence:%d:typing", roomID)
}

// Heartbeat marks the user online now.
func (s *RedisStore) Heartbeat(ctx context.Context, roomID int64, userUUID string) error {
	key := onlineKey(roomID)
	now := time.Now().UnixMilli()

	err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: userUUID,
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, presenceTTL)
	return nil
}

// Online returns users with a heartbeat inside the online window, dropping
// stale members as a side effect.
func (s *RedisStore) Online(ctx context.Context, roomID int64) ([]string, error) {
	key := onlineKey(roomID)
	cutoff := time.Now().Add(-onlineWindow).UnixMilli()

	// Trim members that fell out of the window.
	s.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))

	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
}

// PublishTyping records one typing transition.
func (s *RedisStore) PublishTyping(ctx context.Context, ev models.TypingEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	key := typingKey(ev.RoomID)
	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(ev.At.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	// Drop events past retention and keep the key from outliving the room.
	cutoff := time.Now().Add(-typingRetention).UnixMilli()
	s.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
	s.client.Expire(ctx, key, typingTTL)
	return nil
}

// TypingAfter returns typing events recorded strictly after since.
func (s *RedisStore) TypingAfter(ctx context.Context, roomID int64, since time.Time) ([]models.TypingEvent, error) {
	results, err := s.client.ZRangeByScore(ctx, typingKey(roomID), &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", since.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	events := make([]models.TypingEvent, 0, len(results))
	for _, data := range results {
		var ev models.TypingEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}
