package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if it still holds our token, so an
// expired holder cannot release a lock taken over by someone else.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis. The key
// expires after ttl so a crashed holder cannot block posting forever.
type Redis struct {
	client  redis.UniversalClient
	key     string
	ttl     time.Duration
	timeout time.Duration
}

func NewRedis(client redis.UniversalClient, key string, ttl, timeout time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key, ttl: ttl, timeout: timeout}
}

func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	err := poll(ctx, r.timeout, func(ctx context.Context) (bool, error) {
		return r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", r.key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Released with a fresh context so a cancelled request still unlocks.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlockScript.Run(ctx, r.client, []string{r.key}, token)
		})
	}, nil
}
