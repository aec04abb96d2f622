package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/flowmesh/swarmcore/core"
)

const recentListCap = 200

// RedisEphemeral implements Ephemeral on Redis: plain key/TTL storage for set/get, a
// capped LPUSH/LRANGE list per namespace for recent(), and Pub/Sub for the live-update
// stream. Grounded on the teacher's pkg/memory/implementations.go RedisMemory shape.
type RedisEphemeral struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisEphemeral connects to redisURL and verifies reachability with a short-lived ping.
func NewRedisEphemeral(redisURL, namespace string, logger core.Logger) (*RedisEphemeral, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("memory: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("memory: redis unreachable: %w", err)
	}

	if namespace == "" {
		namespace = "swarmcore"
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisEphemeral{client: client, namespace: namespace, logger: logger}, nil
}

func (r *RedisEphemeral) key(k string) string {
	return r.namespace + ":" + k
}

func (r *RedisEphemeral) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttlSeconds <= 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return core.NewTaskError("memory.Ephemeral.Set", core.KindPersistenceFailed, key, err)
	}
	return nil
}

func (r *RedisEphemeral) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, core.NewTaskError("memory.Ephemeral.Get", core.KindPersistenceFailed, key, err)
	}
	return v, true, nil
}

func (r *RedisEphemeral) Recent(ctx context.Context, namespace string, n int) ([]string, error) {
	listKey := r.key("recent:" + namespace)
	vals, err := r.client.LRange(ctx, listKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, core.NewTaskError("memory.Ephemeral.Recent", core.KindPersistenceFailed, namespace, err)
	}
	return vals, nil
}

// PushRecent records value under namespace's recent-entries list, trimmed to
// recentListCap so the list never grows unbounded.
func (r *RedisEphemeral) PushRecent(ctx context.Context, namespace, value string) error {
	listKey := r.key("recent:" + namespace)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, listKey, value)
	pipe.LTrim(ctx, listKey, 0, recentListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewTaskError("memory.Ephemeral.PushRecent", core.KindPersistenceFailed, namespace, err)
	}
	return nil
}

func (r *RedisEphemeral) Publish(ctx context.Context, stream string, event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return core.NewTaskError("memory.Ephemeral.Publish", core.KindParseFailed, stream, err)
	}
	if err := r.client.Publish(ctx, r.key(stream), data).Err(); err != nil {
		return core.NewTaskError("memory.Ephemeral.Publish", core.KindPersistenceFailed, stream, err)
	}
	return nil
}

func (r *RedisEphemeral) Subscribe(ctx context.Context, stream string) (<-chan map[string]any, error) {
	pubsub := r.client.Subscribe(ctx, r.key(stream))
	raw := pubsub.Channel()

	out := make(chan map[string]any)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var event map[string]any
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Warn("memory: dropping malformed stream event", map[string]interface{}{
						"stream": stream,
						"error":  err.Error(),
					})
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ Ephemeral = (*RedisEphemeral)(nil)
