package commission

import "context"

// Resolver picks the applicable tier rate for a settlement amount.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the rate of the tier covering amount for the given entity,
// or nil when no tier matches. When several tiers cover the amount the
// narrowest range wins; unbounded ranges count as infinitely wide. Equal
// widths fall back to the lowest tier ID so the result is deterministic.
func (r *Resolver) Resolve(ctx context.Context, entityType EntityType, entityID int64, amount float64) (*float64, error) {
	tiers, err := r.repo.FindMatching(ctx, entityType, entityID, amount)
	if err != nil {
		return nil, err
	}
	best := pickNarrowest(tiers)
	if best == nil {
		return nil, nil
	}
	rate := best.Rate
	return &rate, nil
}

func pickNarrowest(tiers []Tier) *Tier {
	var best *Tier
	for i := range tiers {
		t := &tiers[i]
		if best == nil {
			best = t
			continue
		}
		tw, bw := t.Width(), best.Width()
		if tw < bw || (tw == bw && t.ID < best.ID) {
			best = t
		}
	}
	return best
}
