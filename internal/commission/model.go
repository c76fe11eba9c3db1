package commission

import (
	"math"
	"time"
)

// EntityType names the party a tier applies to.
type EntityType string

const (
	EntityClient      EntityType = "client"
	EntityDistributor EntityType = "distributor"
	EntityCompany     EntityType = "company"
)

// Valid reports whether the entity type is one of the known values.
func (t EntityType) Valid() bool {
	switch t {
	case EntityClient, EntityDistributor, EntityCompany:
		return true
	}
	return false
}

// Tier maps an invoice-amount range to a commission percentage for one
// entity. A nil MaxAmount means the range is unbounded above. Ranges for
// the same entity are allowed to overlap in storage; the resolver breaks
// ties deterministically.
type Tier struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	MinAmount  float64    `json:"min_amount"`
	MaxAmount  *float64   `json:"max_amount,omitempty"`
	Rate       float64    `json:"rate"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Matches reports whether amount falls inside the tier's range.
func (t Tier) Matches(amount float64) bool {
	if amount < t.MinAmount {
		return false
	}
	if t.MaxAmount != nil && amount > *t.MaxAmount {
		return false
	}
	return true
}

// Width returns the size of the tier's range; unbounded tiers sort last.
func (t Tier) Width() float64 {
	if t.MaxAmount == nil {
		return math.Inf(1)
	}
	return *t.MaxAmount - t.MinAmount
}
