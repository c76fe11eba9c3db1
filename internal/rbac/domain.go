package rbac

// Permission represents an atomic capability, named "module.action".
type Permission struct {
	ID          int64
	Name        string
	Description string
}
