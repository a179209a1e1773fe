package authsession

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/tokenstore"
)

func mintToken(t *testing.T, userID string, iat, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"email":    userID + "@example.com",
		"name":     "Test User",
		"avatar":   "https://example.com/a.png",
		"provider": "github",
		"iat":      iat.Unix(),
		"exp":      exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func newTokens() *tokenstore.Store {
	return tokenstore.New(tokenstore.NewMemory(), "test_token")
}

func TestLoginURL_Success(t *testing.T) {
	tokens := newTokens()
	ctrl := New("https://api.example.com/auth", tokens)

	loginURL, err := ctrl.LoginURL(labdojo.ProviderGoogle, "/dashboard")

	if err != nil {
		t.Fatalf("LoginURL returned error: %v", err)
	}
	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if !strings.HasPrefix(loginURL, "https://api.example.com/auth/google?") {
		t.Errorf("unexpected URL %s", loginURL)
	}

	state := parsed.Query().Get("state")
	if len(state) != 64 {
		t.Errorf("expected 64 hex chars of state, got %d", len(state))
	}
	if parsed.Query().Get("redirect_url") != "/dashboard" {
		t.Errorf("unexpected redirect_url %s", parsed.Query().Get("redirect_url"))
	}

	// The nonce must already be persisted.
	stored, ok := tokens.ConsumeState()
	if !ok || stored != state {
		t.Error("state nonce should be stored before the URL is returned")
	}
}

func TestLoginURL_UnsupportedProvider(t *testing.T) {
	ctrl := New("https://api.example.com/auth", newTokens())

	_, err := ctrl.LoginURL("facebook", "/")

	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoginURL_FreshStatePerAttempt(t *testing.T) {
	tokens := newTokens()
	ctrl := New("https://api.example.com/auth", tokens)

	first, _ := ctrl.LoginURL(labdojo.ProviderGitHub, "/")
	second, _ := ctrl.LoginURL(labdojo.ProviderGitHub, "/")

	stateOf := func(raw string) string {
		u, _ := url.Parse(raw)
		return u.Query().Get("state")
	}
	if stateOf(first) == stateOf(second) {
		t.Error("each login attempt must generate a fresh nonce")
	}

	// Only the latest nonce survives.
	stored, _ := tokens.ConsumeState()
	if stored != stateOf(second) {
		t.Error("stored state should be the latest nonce")
	}
}

func TestHandleCallback_Success(t *testing.T) {
	tokens := newTokens()
	ctrl := New("https://api.example.com/auth", tokens)
	tokens.SetState("nonce")
	iat := time.Now().Truncate(time.Second)
	token := mintToken(t, "user1", iat, iat.Add(time.Hour))

	user, err := ctrl.HandleCallback(context.Background(), token, "nonce")

	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if user.ID != "user1" {
		t.Errorf("expected user1, got %s", user.ID)
	}
	if user.Provider != "github" {
		t.Errorf("expected github, got %s", user.Provider)
	}
	if user.CreatedAt != iat.UTC().Format(time.RFC3339) {
		t.Errorf("unexpected CreatedAt %s", user.CreatedAt)
	}
	if stored, ok := tokens.Token(); !ok || stored != token {
		t.Error("token should be persisted after callback")
	}
}

func TestHandleCallback_StateMismatch(t *testing.T) {
	tokens := newTokens()
	ctrl := New("https://api.example.com/auth", tokens)
	tokens.SetState("expected")
	token := mintToken(t, "user1", time.Now(), time.Now().Add(time.Hour))

	_, err := ctrl.HandleCallback(context.Background(), token, "tampered")

	if !errors.Is(err, labdojo.ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
	if _, ok := tokens.Token(); ok {
		t.Error("no token should be stored on state mismatch")
	}
	// The nonce is consumed even on mismatch, so a replay fails too.
	if _, ok := tokens.ConsumeState(); ok {
		t.Error("state should be consumed on mismatch")
	}
}

func TestHandleCallback_StateWithoutStored(t *testing.T) {
	ctrl := New("https://api.example.com/auth", newTokens())
	token := mintToken(t, "user1", time.Now(), time.Now().Add(time.Hour))

	_, err := ctrl.HandleCallback(context.Background(), token, "nonce")

	if !errors.Is(err, labdojo.ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
}

func TestHandleCallback_NoState(t *testing.T) {
	// Providers that strip the state parameter still complete login.
	tokens := newTokens()
	ctrl := New("https://api.example.com/auth", tokens)
	tokens.SetState("unconsumed")
	token := mintToken(t, "user1", time.Now(), time.Now().Add(time.Hour))

	user, err := ctrl.HandleCallback(context.Background(), token, "")

	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user")
	}
}

func TestHandleCallback_MissingToken(t *testing.T) {
	tokens := newTokens()
	ctrl := New("https://api.example.com/auth", tokens)
	tokens.SetState("nonce")

	_, err := ctrl.HandleCallback(context.Background(), "", "nonce")

	if !errors.Is(err, labdojo.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestHandleCallback_MalformedToken(t *testing.T) {
	ctrl := New("https://api.example.com/auth", newTokens())

	_, err := ctrl.HandleCallback(context.Background(), "not-a-jwt", "")

	if err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestCurrentUser_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":"user1","email":"user1@example.com","name":"Test","provider":"google"}}`))
	}))
	defer server.Close()
	ctrl := New(server.URL, newTokens())

	user, err := ctrl.CurrentUser(context.Background())

	if err != nil {
		t.Fatalf("CurrentUser returned error: %v", err)
	}
	if user == nil || user.ID != "user1" {
		t.Fatalf("expected user1, got %+v", user)
	}
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()
	ctrl := New(server.URL, newTokens())

	user, err := ctrl.CurrentUser(context.Background())

	if err != nil {
		t.Fatalf("401 must not be an error, got %v", err)
	}
	if user != nil {
		t.Error("expected nil user on 401")
	}
}

func TestCurrentUser_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on
	ctrl := New(server.URL, newTokens())

	user, err := ctrl.CurrentUser(context.Background())

	if err != nil {
		t.Fatalf("network failure must not be an error, got %v", err)
	}
	if user != nil {
		t.Error("expected nil user on network failure")
	}
}

func TestCurrentUser_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	ctrl := New(server.URL, newTokens())

	_, err := ctrl.CurrentUser(context.Background())

	if err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestLogout_ClearsLocalState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logout" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()
	tokens := newTokens()
	ctrl := New(server.URL, tokens)
	tokens.SetToken("tok")
	tokens.SetState("nonce")

	if err := ctrl.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if _, ok := tokens.Token(); ok {
		t.Error("token should be cleared")
	}
	if _, ok := tokens.ConsumeState(); ok {
		t.Error("state should be cleared")
	}
}

func TestLogout_BackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	tokens := newTokens()
	ctrl := New(server.URL, tokens)
	tokens.SetToken("tok")

	// Local logout must succeed even when the backend rejects it.
	if err := ctrl.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, ok := tokens.Token(); ok {
		t.Error("token should be cleared despite backend failure")
	}
}

func TestRefreshToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refresh" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()
	ctrl := New(server.URL, newTokens())

	if !ctrl.RefreshToken(context.Background()) {
		t.Error("expected refresh success")
	}
}

func TestRefreshToken_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()
	ctrl := New(server.URL, newTokens())

	if ctrl.RefreshToken(context.Background()) {
		t.Error("expected refresh failure")
	}
}

func TestIsAuthenticated(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()
	ctrl := New(server.URL, newTokens())

	if !ctrl.IsAuthenticated(context.Background()) {
		t.Error("expected authenticated on 200")
	}

	status = http.StatusUnauthorized
	if ctrl.IsAuthenticated(context.Background()) {
		t.Error("expected unauthenticated on 401")
	}
}

func TestAutoRefresh_TriggersWithinWindow(t *testing.T) {
	refreshed := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh" {
			select {
			case refreshed <- struct{}{}:
			default:
			}
		}
	}))
	defer server.Close()

	now := time.Now()
	tokens := newTokens()
	tokens.SetToken(mintToken(t, "user1", now.Add(-time.Hour), now.Add(2*time.Minute)))
	ctrl := New(server.URL, tokens,
		WithRefreshSchedule(10*time.Millisecond, 5*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	ctrl.StartAutoRefresh()
	defer ctrl.StopAutoRefresh()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a refresh for a token expiring within the window")
	}
}

func TestAutoRefresh_SkipsHealthyToken(t *testing.T) {
	var refreshes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh" {
			refreshes.Add(1)
		}
	}))
	defer server.Close()

	now := time.Now()
	tokens := newTokens()
	tokens.SetToken(mintToken(t, "user1", now, now.Add(24*time.Hour)))
	ctrl := New(server.URL, tokens,
		WithRefreshSchedule(10*time.Millisecond, 5*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	ctrl.StartAutoRefresh()
	time.Sleep(100 * time.Millisecond)
	ctrl.StopAutoRefresh()

	if n := refreshes.Load(); n != 0 {
		t.Errorf("token far from expiry must not be refreshed, got %d refreshes", n)
	}
}

func TestAutoRefresh_SkipsExpiredToken(t *testing.T) {
	var refreshes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh" {
			refreshes.Add(1)
		}
	}))
	defer server.Close()

	now := time.Now()
	tokens := newTokens()
	tokens.SetToken(mintToken(t, "user1", now.Add(-2*time.Hour), now.Add(-time.Minute)))
	ctrl := New(server.URL, tokens,
		WithRefreshSchedule(10*time.Millisecond, 5*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	ctrl.StartAutoRefresh()
	time.Sleep(100 * time.Millisecond)
	ctrl.StopAutoRefresh()

	if n := refreshes.Load(); n != 0 {
		t.Errorf("expired token must not be refreshed, got %d refreshes", n)
	}
}

func TestStartAutoRefresh_Idempotent(t *testing.T) {
	ctrl := New("https://api.example.com/auth", newTokens())

	ctrl.StartAutoRefresh()
	ctrl.StartAutoRefresh()
	ctrl.StopAutoRefresh()
	ctrl.StopAutoRefresh()
}
