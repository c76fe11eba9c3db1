package commission

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *memoryTierRepo) {
	repo := newMemoryTierRepo()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func TestCreateTierValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   TierInput
	}{
		{"unknown entity type", TierInput{EntityType: "vendor", EntityID: 1, Rate: 5}},
		{"missing entity", TierInput{EntityType: EntityClient, Rate: 5}},
		{"negative minimum", TierInput{EntityType: EntityClient, EntityID: 1, MinAmount: -1, Rate: 5}},
		{"max below min", TierInput{EntityType: EntityClient, EntityID: 1, MinAmount: 100, MaxAmount: f(50), Rate: 5}},
		{"max equals min", TierInput{EntityType: EntityClient, EntityID: 1, MinAmount: 100, MaxAmount: f(100), Rate: 5}},
		{"rate above 100", TierInput{EntityType: EntityClient, EntityID: 1, Rate: 101}},
		{"negative rate", TierInput{EntityType: EntityClient, EntityID: 1, Rate: -0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateAndUpdateTier(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	id, err := svc.Create(ctx, TierInput{
		EntityType: EntityDistributor,
		EntityID:   4,
		MinAmount:  0,
		MaxAmount:  f(2000),
		Rate:       6,
	})
	require.NoError(t, err)

	err = svc.Update(ctx, id, TierInput{
		EntityType: EntityDistributor,
		EntityID:   4,
		MinAmount:  0,
		MaxAmount:  nil,
		Rate:       7.5,
	})
	require.NoError(t, err)

	tier, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, tier.MaxAmount)
	require.Equal(t, 7.5, tier.Rate)
}

func TestUpdateTierRejectsEntityChange(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	id, err := svc.Create(ctx, TierInput{EntityType: EntityClient, EntityID: 1, Rate: 5})
	require.NoError(t, err)

	err = svc.Update(ctx, id, TierInput{EntityType: EntityCompany, EntityID: 1, Rate: 5})
	require.ErrorIs(t, err, ErrValidation)

	err = svc.Update(ctx, id, TierInput{EntityType: EntityClient, EntityID: 2, Rate: 5})
	require.ErrorIs(t, err, ErrValidation)
}

func TestDeleteTier(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	id, err := svc.Create(ctx, TierInput{EntityType: EntityClient, EntityID: 1, Rate: 5})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, id))
	require.ErrorIs(t, svc.Delete(ctx, id), ErrNotFound)
}

func TestPreviewUsesResolver(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	repo.seed(t, EntityClient, 1, 0, f(1000), 5)

	rate, err := svc.Preview(ctx, EntityClient, 1, 400)
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, 5.0, *rate)

	_, err = svc.Preview(ctx, "vendor", 1, 400)
	require.ErrorIs(t, err, ErrValidation)
}
