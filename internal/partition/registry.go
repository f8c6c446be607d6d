package partition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/partyroom/internal/model"
)

const registryPrefix = "partyroom:endpoints"

type cacheKey struct {
	service   Service
	partition int
}

// RedisRegistry stores partition endpoints in a redis hash per service.
// Nodes register the partitions they acquire; resolvers read through a
// local cache that Invalidate clears.
type RedisRegistry struct {
	client *redis.Client

	mu    sync.RWMutex
	cache map[cacheKey]string
}

// NewRedisRegistry creates a registry over an existing client
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		cache:  make(map[cacheKey]string),
	}
}

func registryKey(service Service) string {
	return fmt.Sprintf("%s:%s", registryPrefix, service)
}

// Register publishes endpoint as the owner of a partition
func (r *RedisRegistry) Register(ctx context.Context, service Service, partition int, endpoint string) error {
	if err := r.client.HSet(ctx, registryKey(service), strconv.Itoa(partition), endpoint).Err(); err != nil {
		return fmt.Errorf("%w: registering endpoint: %v", model.ErrTransient, err)
	}
	r.Invalidate(service, partition)
	return nil
}

// Deregister removes a partition's endpoint if it still points at endpoint
func (r *RedisRegistry) Deregister(ctx context.Context, service Service, partition int, endpoint string) error {
	field := strconv.Itoa(partition)
	current, err := r.client.HGet(ctx, registryKey(service), field).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading endpoint: %v", model.ErrTransient, err)
	}
	if current != endpoint {
		return nil
	}
	if err := r.client.HDel(ctx, registryKey(service), field).Err(); err != nil {
		return fmt.Errorf("%w: removing endpoint: %v", model.ErrTransient, err)
	}
	r.Invalidate(service, partition)
	return nil
}

// Resolve returns the registered endpoint, from cache when possible
func (r *RedisRegistry) Resolve(ctx context.Context, service Service, partition int) (string, error) {
	key := cacheKey{service: service, partition: partition}

	r.mu.RLock()
	ep, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return ep, nil
	}

	ep, err := r.client.HGet(ctx, registryKey(service), strconv.Itoa(partition)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s partition %d has no registered endpoint", model.ErrNotOwner, service, partition)
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolving endpoint: %v", model.ErrTransient, err)
	}

	r.mu.Lock()
	r.cache[key] = ep
	r.mu.Unlock()
	return ep, nil
}

// Invalidate drops the cached endpoint of a partition
func (r *RedisRegistry) Invalidate(service Service, partition int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, cacheKey{service: service, partition: partition})
}
