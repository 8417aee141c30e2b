package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore implements Store on Redis. Each online user holds a key
// with a TTL plus membership in a sorted set scored by last heartbeat,
// which gives cheap range eviction for ListOnlineUserIDs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Options configures a RedisStore.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "hubso:"
	TTL      time.Duration // record lifetime, default 60s
}

// NewRedisStore creates a presence store backed by the given Redis
// instance. The connection is lazy; a dead backend degrades operations
// rather than failing construction.
func NewRedisStore(opts Options, logger zerolog.Logger) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "hubso:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 60 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStore{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		now:    time.Now,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// NewRedisStoreWithClient wraps an existing client, used in tests.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "hubso:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// Ping checks backend reachability. Callers may treat failure as
// non-fatal: the store keeps serving degraded defaults.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "online:" + userID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "online"
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string) {
	now := s.now().UnixMilli()
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.userKey(userID), strconv.FormatInt(now, 10), s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now), Member: userID})
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded("set online", userID, err)
	}
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string) {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.userKey(userID))
	pipe.ZRem(ctx, s.indexKey(), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded("set offline", userID, err)
	}
}

func (s *RedisStore) Heartbeat(ctx context.Context, userID string) {
	exists, err := s.client.Exists(ctx, s.userKey(userID)).Result()
	if err != nil {
		s.degraded("heartbeat", userID, err)
		return
	}
	if exists == 0 {
		// No record: the session was closed or expired. Do not resurrect.
		return
	}
	now := s.now().UnixMilli()
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.userKey(userID), s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now), Member: userID})
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded("heartbeat", userID, err)
	}
}

func (s *RedisStore) IsOnline(ctx context.Context, userID string) bool {
	exists, err := s.client.Exists(ctx, s.userKey(userID)).Result()
	if err != nil {
		s.degraded("is online", userID, err)
		return false
	}
	return exists == 1
}

func (s *RedisStore) GetPresence(ctx context.Context, userIDs []string) map[string]bool {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, s.userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("presence batch lookup degraded, reporting all offline")
		for _, id := range userIDs {
			out[id] = false
		}
		return out
	}
	for i, id := range userIDs {
		n, err := cmds[i].Result()
		out[id] = err == nil && n == 1
	}
	return out
}

func (s *RedisStore) ListOnlineUserIDs(ctx context.Context) []string {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("presence eviction degraded, reporting none online")
		return nil
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("presence listing degraded, reporting none online")
		return nil
	}
	return ids
}

func (s *RedisStore) degraded(op, userID string, err error) {
	s.logger.Warn().Err(err).Str("op", op).Str("user_id", userID).Msg("presence backend unavailable, degraded")
}
