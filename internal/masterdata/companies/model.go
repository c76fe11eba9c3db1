package companies

import "time"

// Company is the issuing entity an invoice ultimately settles against,
// reached through the invoice's file. CommissionRate is the default used
// when no commission tier matches.
type Company struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CommissionRate float64   `json:"commission_rate"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
