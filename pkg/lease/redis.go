package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "provtrack:lease:"

// Owner-checked updates so a process never extends or drops a lease it lost.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// Redis is a Locker shared by every process using the same server.
type Redis struct {
	client redis.UniversalClient
	owner  string
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, owner: uuid.NewString()}
}

// NewRedisFromURL connects to the server at url (redis://...) and checks it answers.
func NewRedisFromURL(ctx context.Context, url string) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedis(client), nil
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := r.client.SetNX(ctx, keyPrefix+key, r.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}

	return acquired, nil
}

func (r *Redis) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	updated, err := refreshScript.Run(ctx, r.client, []string{keyPrefix + key}, r.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lease %s: %w", key, err)
	}

	if updated == 0 {
		return ErrNotHeld
	}

	return nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	deleted, err := releaseScript.Run(ctx, r.client, []string{keyPrefix + key}, r.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}

	if deleted == 0 {
		return ErrNotHeld
	}

	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
