package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrProjectionBusy = errors.New("reminder projection lock not acquired")

const (
	pendingKey = "reminders:pending"
	lockKey    = "lock:reminders:project"
)

// RedisScheduler keeps the pending reminder set in a Redis sorted set scored
// by fire time. A SetNX lock with a scripted release guards the
// clear-then-reschedule pass so the api-server hook and the worker top-up
// cannot interleave their replacements.
type RedisScheduler struct {
	client  *redis.Client
	lockTTL time.Duration
	logger  *zap.Logger
}

func NewRedisScheduler(client *redis.Client, lockTTL time.Duration, logger *zap.Logger) *RedisScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisScheduler{client: client, lockTTL: lockTTL, logger: logger}
}

// entry is the sorted-set member. The nonce keeps members unique even when
// duplicate medications project the same payload at the same instant.
type entry struct {
	Nonce   string  `json:"nonce"`
	FireAt  int64   `json:"fire_at"`
	Payload Payload `json:"payload"`
}

func (s *RedisScheduler) CancelAll(ctx context.Context) error {
	if err := s.client.Del(ctx, pendingKey).Err(); err != nil {
		return fmt.Errorf("clear pending reminders: %w", err)
	}
	return nil
}

func (s *RedisScheduler) Schedule(ctx context.Context, p Payload, fireAt time.Time) error {
	member, err := json.Marshal(entry{
		Nonce:   uuid.NewString(),
		FireAt:  fireAt.Unix(),
		Payload: p,
	})
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}

	err = s.client.ZAdd(ctx, pendingKey, redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

// Due pops every reminder whose fire instant is at or before now.
func (s *RedisScheduler) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	max := strconv.FormatInt(now.Unix(), 10)
	members, err := s.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	removal := make([]interface{}, len(members))
	out := make([]Reminder, 0, len(members))
	for i, m := range members {
		removal[i] = m

		var e entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			s.logger.Warn("dropping undecodable reminder entry", zap.Error(err))
			continue
		}
		out = append(out, Reminder{FireAt: time.Unix(e.FireAt, 0), Payload: e.Payload})
	}

	if err := s.client.ZRem(ctx, pendingKey, removal...).Err(); err != nil {
		return nil, fmt.Errorf("remove due reminders: %w", err)
	}
	return out, nil
}

// WithProjectionLock runs fn while holding the projection lock. A second
// caller gets ErrProjectionBusy instead of waiting; a dropped re-projection
// is made up by the next trigger.
func (s *RedisScheduler) WithProjectionLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire projection lock: %w", err)
	}
	if !ok {
		return ErrProjectionBusy
	}

	defer func() {
		if err := s.release(ctx, token); err != nil {
			s.logger.Warn("projection lock release failed", zap.Error(err))
		}
	}()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (s *RedisScheduler) release(ctx context.Context, token string) error {
	_, err := unlockScript.Run(ctx, s.client, []string{lockKey}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release projection lock: %w", err)
	}
	return nil
}
