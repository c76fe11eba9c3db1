package files

import "time"

// File is the routing record an invoice is created against. Each file
// belongs to exactly one company; the invoice's company leg settles
// against that company.
type File struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CompanyID int64     `json:"company_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileWithCompany joins the owning company name for listings.
type FileWithCompany struct {
	File
	CompanyName string `json:"company_name"`
}
