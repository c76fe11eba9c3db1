package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veris-bms/veris/internal/shared"
	_ "github.com/veris-bms/veris/testing"
)

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "test-signing-secret", time.Hour, false)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetUser("42")
	sess.Set("role", "distributor")

	res := httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	cookies := res.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "test_session" {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, req2)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if loaded.User() != "42" {
		t.Fatalf("expected user 42, got %q", loaded.User())
	}
	if loaded.Get("role") != "distributor" {
		t.Fatalf("expected role distributor, got %q", loaded.Get("role"))
	}
}

func TestSessionFlashPop(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "invoice created"})

	res := httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(res.Result().Cookies()[0])
	loaded, err := sm.Load(ctx, req2)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}

	msg := loaded.PopFlash()
	if msg == nil || msg.Message != "invoice created" {
		t.Fatalf("expected flash message, got %v", msg)
	}
	if loaded.PopFlash() != nil {
		t.Fatalf("expected flash queue drained")
	}
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	commit := func(user string) *http.Cookie {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		sess, err := sm.Load(ctx, req)
		if err != nil {
			t.Fatalf("load session: %v", err)
		}
		sess.SetUser(user)
		res := httptest.NewRecorder()
		if err := sm.Commit(ctx, res, req, sess); err != nil {
			t.Fatalf("commit session: %v", err)
		}
		return res.Result().Cookies()[0]
	}

	victim := commit("42")
	attacker := commit("99")

	// Splice the victim's session ID onto the attacker's signature. The
	// victim's session exists in Redis, so only the signature check can
	// stop the forgery from resurrecting it.
	victimID, _, ok := strings.Cut(victim.Value, ".")
	if !ok {
		t.Fatalf("expected signed cookie value, got %q", victim.Value)
	}
	_, attackerSig, ok := strings.Cut(attacker.Value, ".")
	if !ok {
		t.Fatalf("expected signed cookie value, got %q", attacker.Value)
	}
	forged := *victim
	forged.Value = victimID + "." + attackerSig

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&forged)
	loaded, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load forged session: %v", err)
	}
	if loaded.User() != "" {
		t.Fatalf("expected fresh session for forged cookie, got user %q", loaded.User())
	}

	// An unsigned bare session ID must not be honored either.
	bare := *victim
	bare.Value = victimID
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&bare)
	plain, err := sm.Load(ctx, req2)
	if err != nil {
		t.Fatalf("load unsigned session: %v", err)
	}
	if plain.User() != "" {
		t.Fatalf("expected fresh session for unsigned cookie, got user %q", plain.User())
	}
}

func TestSessionDestroy(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetUser("7")

	res := httptest.NewRecorder()
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	cookie := res.Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req2)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	sm.Destroy(loaded)

	res2 := httptest.NewRecorder()
	if err := sm.Commit(ctx, res2, req2, loaded); err != nil {
		t.Fatalf("commit destroy: %v", err)
	}
	expired := res2.Result().Cookies()[0]
	if expired.MaxAge != -1 {
		t.Fatalf("expected expired cookie, got MaxAge %d", expired.MaxAge)
	}

	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.AddCookie(cookie)
	gone, err := sm.Load(ctx, req3)
	if err != nil {
		t.Fatalf("load after destroy: %v", err)
	}
	if gone.User() != "" {
		t.Fatalf("expected empty session after destroy, got user %q", gone.User())
	}
}
