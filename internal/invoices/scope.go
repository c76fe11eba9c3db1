package invoices

import "github.com/veris-bms/veris/internal/shared"

// Scope restricts which invoices a query may see. It is produced once per
// request by the authorization layer and passed down; repositories never
// recompute visibility on their own.
type Scope struct {
	// ViewAll grants unrestricted visibility.
	ViewAll bool
	// DistributorID limits results to invoices assigned to this distributor.
	DistributorID int64
	// ExcludeAuthorIDs removes invoices created by these users. Distributor
	// views exclude admin-authored invoices through this list.
	ExcludeAuthorIDs []int64
}

// ScopeFor derives the visibility scope for an actor. Admin IDs are supplied
// by the caller so the exclusion list is built in one place.
func ScopeFor(actor shared.Actor, canViewAll bool, adminIDs []int64) Scope {
	if canViewAll {
		return Scope{ViewAll: true}
	}
	return Scope{
		DistributorID:    actor.ID,
		ExcludeAuthorIDs: adminIDs,
	}
}
