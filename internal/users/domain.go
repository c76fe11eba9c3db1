package users

import (
	"time"

	"github.com/veris-bms/veris/internal/shared"
)

// User is an account: either a back-office admin or a distributor. The
// commission rate is the distributor's default percentage, used when no
// commission tier matches an invoice amount.
type User struct {
	ID             int64       `json:"id"`
	Email          string      `json:"email"`
	FullName       string      `json:"full_name"`
	Role           shared.Role `json:"role"`
	CommissionRate float64     `json:"commission_rate"`
	IsActive       bool        `json:"is_active"`
	PasswordHash   string      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
