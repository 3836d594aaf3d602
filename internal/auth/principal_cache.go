package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/redmonkez12/go-auth-service/internal/user"
)

// ErrPrincipalNotCached is returned by PrincipalCache.Get on a miss
var ErrPrincipalNotCached = errors.New("principal not cached")

// Principal is the guard's view of an authenticated user
type Principal struct {
	ID       uuid.UUID
	Name     string
	Role     user.Role
	Verified bool
}

// RedisPrincipalCache stores principals as Redis hashes with a TTL
type RedisPrincipalCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPrincipalCache(client *redis.Client, ttl time.Duration) *RedisPrincipalCache {
	return &RedisPrincipalCache{client: client, ttl: ttl}
}

// getPrincipalKey generates the Redis key for a cached principal
func getPrincipalKey(userID uuid.UUID) string {
	return fmt.Sprintf("principal:%s", userID.String())
}

// getGenerationKey generates the Redis key counting invalidations of a user.
// It has no TTL so a fill that started before an eviction can be detected.
func getGenerationKey(userID uuid.UUID) string {
	return fmt.Sprintf("principal:gen:%s", userID.String())
}

// Get returns the cached principal or ErrPrincipalNotCached
func (c *RedisPrincipalCache) Get(ctx context.Context, userID uuid.UUID) (*Principal, error) {
	data, err := c.client.HGetAll(ctx, getPrincipalKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrPrincipalNotCached
	}

	role, ok := user.ParseRole(data["role"])
	if !ok {
		return nil, ErrPrincipalNotCached
	}

	verified, err := strconv.ParseBool(data["verified"])
	if err != nil {
		return nil, ErrPrincipalNotCached
	}

	return &Principal{
		ID:       userID,
		Name:     data["name"],
		Role:     role,
		Verified: verified,
	}, nil
}

// Version returns the invalidation generation of userID. Pass it to Set
// after reading the user from the store.
func (c *RedisPrincipalCache) Version(ctx context.Context, userID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, getGenerationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read principal version: %w", err)
	}
	return gen, nil
}

// Set caches p for the configured TTL unless the user was invalidated after
// version was read. A skipped write is not an error.
func (c *RedisPrincipalCache) Set(ctx context.Context, p *Principal, version int64) error {
	key := getPrincipalKey(p.ID)
	genKey := getGenerationKey(p.ID)

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		gen, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if gen != version {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]any{
				"role":     string(p.Role),
				"verified": strconv.FormatBool(p.Verified),
				"name":     p.Name,
			})
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)

	// an invalidation landed between WATCH and EXEC
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cache principal: %w", err)
	}

	return nil
}

// Invalidate drops the cached principal for userID and bumps its generation
func (c *RedisPrincipalCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, getGenerationKey(userID))
	pipe.Del(ctx, getPrincipalKey(userID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate principal: %w", err)
	}
	return nil
}

// NopPrincipalCache is used when Redis is not configured; every lookup misses
type NopPrincipalCache struct{}

func (NopPrincipalCache) Get(context.Context, uuid.UUID) (*Principal, error) {
	return nil, ErrPrincipalNotCached
}

func (NopPrincipalCache) Version(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (NopPrincipalCache) Set(context.Context, *Principal, int64) error { return nil }

func (NopPrincipalCache) Invalidate(context.Context, uuid.UUID) error { return nil }
