package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

type matchMode int

const (
	matchAny matchMode = iota
	matchAll
)

// RequireAny ensures the current actor holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(matchAny, perms)
}

// RequireAll ensures the current actor holds every listed permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(matchAll, perms)
}

func (m Middleware) require(mode matchMode, perms []string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "authentication required")
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), actor.ID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac permission lookup",
						slog.Int64("user_id", actor.ID), slog.Any("error", err))
				}
				httpx.Fail(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
			if permitted(mode, granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Fail(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

func permitted(mode matchMode, granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		_, ok := set[r]
		if mode == matchAny && ok {
			return true
		}
		if mode == matchAll && !ok {
			return false
		}
	}
	return mode == matchAll
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
