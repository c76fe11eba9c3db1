package shared

// ListFilters carries common listing parameters for masterdata collections.
type ListFilters struct {
	Search string
	Limit  int
	Offset int
}

// Normalize applies listing defaults.
func (f ListFilters) Normalize() ListFilters {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
