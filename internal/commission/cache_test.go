package commission

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingTierRepo struct {
	*memoryTierRepo
	lookups int
}

func (c *countingTierRepo) FindMatching(ctx context.Context, entityType EntityType, entityID int64, amount float64) ([]Tier, error) {
	c.lookups++
	return c.memoryTierRepo.FindMatching(ctx, entityType, entityID, amount)
}

func newCachedResolverFixture(t *testing.T) (*CachedResolver, *countingTierRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &countingTierRepo{memoryTierRepo: newMemoryTierRepo()}
	return NewCachedResolver(NewResolver(repo), client, time.Minute, nil), repo
}

func TestCachedResolveHitsRedisSecondTime(t *testing.T) {
	resolver, repo := newCachedResolverFixture(t)
	ctx := context.Background()
	repo.seed(t, EntityClient, 7, 0, f(1000), 5)

	rate, err := resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 5.0, *rate)
	require.Equal(t, 1, repo.lookups)

	again, err := resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, 5.0, *again)
	require.Equal(t, 1, repo.lookups, "second resolve should come from the cache")
}

func TestCachedResolveMemoizesNoMatch(t *testing.T) {
	resolver, repo := newCachedResolverFixture(t)
	ctx := context.Background()

	rate, err := resolver.Resolve(ctx, EntityDistributor, 3, 250)
	require.NoError(t, err)
	require.Nil(t, rate)

	rate, err = resolver.Resolve(ctx, EntityDistributor, 3, 250)
	require.NoError(t, err)
	require.Nil(t, rate)
	require.Equal(t, 1, repo.lookups, "no-match result should be cached too")
}

func TestInvalidateDropsCachedRates(t *testing.T) {
	resolver, repo := newCachedResolverFixture(t)
	ctx := context.Background()
	id := repo.seed(t, EntityClient, 7, 0, f(1000), 5)

	rate, err := resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.Equal(t, 5.0, *rate)

	require.NoError(t, repo.Update(ctx, id, Tier{MinAmount: 0, MaxAmount: f(1000), Rate: 8}))
	require.NoError(t, resolver.Invalidate(ctx, EntityClient, 7))

	rate, err = resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 8.0, *rate, "invalidation should expose the updated tier rate")
	require.Equal(t, 2, repo.lookups)
}

func TestInvalidateScopedToEntity(t *testing.T) {
	resolver, repo := newCachedResolverFixture(t)
	ctx := context.Background()
	repo.seed(t, EntityClient, 7, 0, f(1000), 5)
	repo.seed(t, EntityClient, 8, 0, f(1000), 6)

	_, err := resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, EntityClient, 8, 500)
	require.NoError(t, err)
	require.Equal(t, 2, repo.lookups)

	require.NoError(t, resolver.Invalidate(ctx, EntityClient, 7))

	_, err = resolver.Resolve(ctx, EntityClient, 8, 500)
	require.NoError(t, err)
	require.Equal(t, 2, repo.lookups, "other entities keep their cached rates")

	_, err = resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.Equal(t, 3, repo.lookups)
}

func TestTierWritesInvalidateViaService(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &countingTierRepo{memoryTierRepo: newMemoryTierRepo()}
	resolver := NewCachedResolver(NewResolver(repo), client, time.Minute, nil)
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetRateInvalidator(resolver)
	ctx := context.Background()

	id, err := svc.Create(ctx, TierInput{
		EntityType: EntityClient,
		EntityID:   7,
		MinAmount:  0,
		MaxAmount:  f(1000),
		Rate:       5,
	})
	require.NoError(t, err)

	rate, err := resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.Equal(t, 5.0, *rate)

	err = svc.Update(ctx, id, TierInput{
		EntityType: EntityClient,
		EntityID:   7,
		MinAmount:  0,
		MaxAmount:  f(1000),
		Rate:       9,
	})
	require.NoError(t, err)

	rate, err = resolver.Resolve(ctx, EntityClient, 7, 500)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 9.0, *rate, "tier update should evict the stale cached rate")
}
