package commission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryTierRepo struct {
	tiers  map[int64]Tier
	nextID int64
}

func newMemoryTierRepo() *memoryTierRepo {
	return &memoryTierRepo{tiers: map[int64]Tier{}, nextID: 1}
}

func (m *memoryTierRepo) Get(_ context.Context, id int64) (*Tier, error) {
	t, ok := m.tiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *memoryTierRepo) ListForEntity(_ context.Context, entityType EntityType, entityID int64) ([]Tier, error) {
	var out []Tier
	for _, t := range m.tiers {
		if t.EntityType == entityType && t.EntityID == entityID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryTierRepo) FindMatching(_ context.Context, entityType EntityType, entityID int64, amount float64) ([]Tier, error) {
	var out []Tier
	for _, t := range m.tiers {
		if t.EntityType == entityType && t.EntityID == entityID && t.Matches(amount) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryTierRepo) Create(_ context.Context, tier Tier) (int64, error) {
	tier.ID = m.nextID
	m.nextID++
	m.tiers[tier.ID] = tier
	return tier.ID, nil
}

func (m *memoryTierRepo) Update(_ context.Context, id int64, tier Tier) error {
	existing, ok := m.tiers[id]
	if !ok {
		return ErrNotFound
	}
	existing.MinAmount = tier.MinAmount
	existing.MaxAmount = tier.MaxAmount
	existing.Rate = tier.Rate
	m.tiers[id] = existing
	return nil
}

func (m *memoryTierRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.tiers[id]; !ok {
		return ErrNotFound
	}
	delete(m.tiers, id)
	return nil
}

func (m *memoryTierRepo) ListOverlapping(_ context.Context) ([][2]Tier, error) {
	return nil, nil
}

func (m *memoryTierRepo) seed(t *testing.T, entityType EntityType, entityID int64, min float64, max *float64, rate float64) int64 {
	t.Helper()
	id, err := m.Create(context.Background(), Tier{
		EntityType: entityType,
		EntityID:   entityID,
		MinAmount:  min,
		MaxAmount:  max,
		Rate:       rate,
	})
	require.NoError(t, err)
	return id
}

func f(v float64) *float64 { return &v }

func TestResolveSingleMatch(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityClient, 7, 0, f(1000), 5)
	repo.seed(t, EntityClient, 7, 1000.01, f(5000), 8)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityClient, 7, 2500)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 8.0, *rate)
}

func TestResolveNoMatchReturnsNil(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityClient, 7, 0, f(1000), 5)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityClient, 7, 9999)
	require.NoError(t, err)
	require.Nil(t, rate)
}

func TestResolveBoundariesInclusive(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityDistributor, 3, 100, f(500), 4)

	resolver := NewResolver(repo)
	for _, amount := range []float64{100, 500} {
		rate, err := resolver.Resolve(context.Background(), EntityDistributor, 3, amount)
		require.NoError(t, err)
		require.NotNil(t, rate)
		require.Equal(t, 4.0, *rate)
	}

	rate, err := resolver.Resolve(context.Background(), EntityDistributor, 3, 99.99)
	require.NoError(t, err)
	require.Nil(t, rate)
}

func TestResolveOverlapPicksNarrowestRange(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityClient, 1, 0, f(10000), 3)
	narrow := repo.seed(t, EntityClient, 1, 400, f(600), 9)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityClient, 1, 500)
	require.NoError(t, err)
	require.NotNil(t, rate)

	tier, err := repo.Get(context.Background(), narrow)
	require.NoError(t, err)
	require.Equal(t, tier.Rate, *rate)
}

func TestResolveUnboundedLosesToBounded(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityCompany, 2, 0, nil, 2)
	repo.seed(t, EntityCompany, 2, 0, f(100000), 6)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityCompany, 2, 50000)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 6.0, *rate)
}

func TestResolveUnboundedMatchesWhenAlone(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityCompany, 2, 5000, nil, 2)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityCompany, 2, 1e9)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 2.0, *rate)
}

func TestResolveEqualWidthTieBreaksOnLowestID(t *testing.T) {
	repo := newMemoryTierRepo()
	first := repo.seed(t, EntityClient, 9, 0, f(1000), 5)
	repo.seed(t, EntityClient, 9, 0, f(1000), 7)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityClient, 9, 500)
	require.NoError(t, err)
	require.NotNil(t, rate)

	tier, err := repo.Get(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, tier.Rate, *rate)
}

func TestResolveScopedByEntity(t *testing.T) {
	repo := newMemoryTierRepo()
	repo.seed(t, EntityClient, 1, 0, f(1000), 5)
	repo.seed(t, EntityDistributor, 1, 0, f(1000), 9)

	rate, err := NewResolver(repo).Resolve(context.Background(), EntityClient, 1, 500)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 5.0, *rate)

	rate, err = NewResolver(repo).Resolve(context.Background(), EntityClient, 2, 500)
	require.NoError(t, err)
	require.Nil(t, rate)
}
