package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-auth-service/internal/user"
)

func newRedisCache(t *testing.T) (*RedisPrincipalCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisPrincipalCache(client, time.Minute), mr
}

func TestRedisPrincipalCache(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	p := &Principal{ID: uuid.New(), Name: "Ann", Role: user.RoleAdmin, Verified: true}

	_, err := cache.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrPrincipalNotCached)

	require.NoError(t, cache.Set(ctx, p, 0))
	assert.True(t, mr.Exists(getPrincipalKey(p.ID)))
	assert.Equal(t, time.Minute, mr.TTL(getPrincipalKey(p.ID)))

	got, err := cache.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	require.NoError(t, cache.Invalidate(ctx, p.ID))
	_, err = cache.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrPrincipalNotCached)

	version, err := cache.Version(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, p, version))
	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrPrincipalNotCached)
}

func TestRedisPrincipalCacheSkipsFillsOlderThanInvalidate(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	p := &Principal{ID: uuid.New(), Name: "Ann", Role: user.RoleUser, Verified: true}

	version, err := cache.Version(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, version)

	// the account changes while the caller is still reading the store
	require.NoError(t, cache.Invalidate(ctx, p.ID))

	require.NoError(t, cache.Set(ctx, p, version))
	assert.False(t, mr.Exists(getPrincipalKey(p.ID)))
	_, err = cache.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrPrincipalNotCached)

	current, err := cache.Version(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, version+1, current)
	require.NoError(t, cache.Set(ctx, p, current))
	assert.True(t, mr.Exists(getPrincipalKey(p.ID)))
}

func TestRedisPrincipalCacheIgnoresCorruptEntries(t *testing.T) {
	cache, mr := newRedisCache(t)
	id := uuid.New()

	mr.HSet(getPrincipalKey(id), "role", "ROOT", "verified", "true", "name", "Ann")
	_, err := cache.Get(context.Background(), id)
	require.ErrorIs(t, err, ErrPrincipalNotCached)

	mr.HSet(getPrincipalKey(id), "role", "USER", "verified", "maybe")
	_, err = cache.Get(context.Background(), id)
	require.ErrorIs(t, err, ErrPrincipalNotCached)
}

func TestPrincipalCacheFollowsAccountChanges(t *testing.T) {
	cache, mr := newRedisCache(t)
	env := newTestEnv(t, cache)
	ctx := context.Background()

	u, err := env.service.Register(ctx, annInput)
	require.NoError(t, err)
	mail := receive(t, env.mailer.registrations)

	p, err := env.service.Principal(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, p.Verified)
	assert.True(t, mr.Exists(getPrincipalKey(u.ID)))

	_, err = env.service.VerifyEmail(ctx, mail.Token)
	require.NoError(t, err)
	assert.False(t, mr.Exists(getPrincipalKey(u.ID)))

	p, err = env.service.Principal(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, p.Verified)
	assert.Equal(t, user.RoleUser, p.Role)

	_, err = env.service.SetRole(ctx, "ann@x.com", user.RoleAdmin)
	require.NoError(t, err)
	p, err = env.service.Principal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, p.Role)

	_, err = env.service.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	_, err = env.service.Principal(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPrincipalFallsBackWhenRedisIsDown(t *testing.T) {
	cache, mr := newRedisCache(t)
	env := newTestEnv(t, cache)

	u, _ := env.registerVerified(t, annInput)
	mr.Close()

	p, err := env.service.Principal(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
	assert.True(t, p.Verified)
}

// racingUsers runs afterGet once, right after the first GetByID returns
type racingUsers struct {
	UserStore
	once     sync.Once
	afterGet func()
}

func (r *racingUsers) GetByID(ctx context.Context, id uuid.UUID, p user.Projection) (*user.User, error) {
	u, err := r.UserStore.GetByID(ctx, id, p)
	r.once.Do(r.afterGet)
	return u, err
}

func TestPrincipalDoesNotCacheRowChangedDuringLoad(t *testing.T) {
	cache, mr := newRedisCache(t)
	env := newTestEnv(t, cache)
	ctx := context.Background()

	ann, _ := env.registerVerified(t, annInput)

	users := &racingUsers{UserStore: env.users}
	users.afterGet = func() {
		_, err := env.service.SetRole(ctx, "ann@x.com", user.RoleAdmin)
		require.NoError(t, err)
	}
	racing := NewService(users, env.resets, env.logs, env.tokens, env.hasher, env.mailer, cache, testDurations)

	// the stale USER row is returned to this caller but never cached
	p, err := racing.Principal(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, p.Role)
	assert.False(t, mr.Exists(getPrincipalKey(ann.ID)))

	p, err = env.service.Principal(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, p.Role)
	assert.True(t, mr.Exists(getPrincipalKey(ann.ID)))
}
