package lib

import (
	"context"
	"errors"
	"fmt"
	"homejobs/src/config"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	cfg := config.Get()
	if cfg.RedisHost == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

var ErrLockHeld = errors.New("lock is held by another instance")

const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLocker lets one instance at a time run a scheduled job.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	token func() string
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, token: uuid.NewString}
}

func LockKey(key string) string {
	return fmt.Sprintf("locks:%s", key)
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := l.token()
	ok, err := l.rdb.SetNX(ctx, LockKey(key), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLock{rdb: l.rdb, key: LockKey(key), token: token}, nil
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Unlock only releases the lock if this instance still owns it.
func (l *redisLock) Unlock(ctx context.Context) error {
	return l.rdb.Eval(ctx, unlockScript, []string{l.key}, l.token).Err()
}
