package shared

import "errors"

var (
	// ErrNotFound indicates a resource is absent or outside the actor's
	// visibility scope. The two cases are deliberately not distinguished.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns a message suitable for end users. Wrapped
// persistence errors collapse into a generic notice.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Record not found"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	default:
		return "The operation could not be completed"
	}
}
