package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/database"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenUsers fails every lookup, like a database that has gone away.
type brokenUsers struct{}

func (brokenUsers) GetByID(context.Context, int64) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func setupAuthMiddlewareDB(t *testing.T) (*Authenticator, *auth.TokenIssuer, *store.UserStore) {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	users := store.NewUserStore(db)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewAuthenticator(tokens, users, quietLogger()), tokens, users
}

func createMiddlewareUser(t *testing.T, users *store.UserStore, email string, admin bool) int64 {
	t.Helper()
	ctx := context.Background()
	nu := store.NewUser{Email: email, PasswordHash: "h", FirstName: "F", LastName: "L"}
	if admin {
		if _, err := users.EnsureAdmin(ctx, nu); err != nil {
			t.Fatalf("create admin: %v", err)
		}
		u, err := users.GetByEmail(ctx, email)
		if err != nil || u == nil {
			t.Fatalf("get admin: %v", err)
		}
		return u.ID
	}
	u, err := users.Create(ctx, nu)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestRequireAuthNoToken(t *testing.T) {
	a, _, _ := setupAuthMiddlewareDB(t)

	handler := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	a, _, _ := setupAuthMiddlewareDB(t)

	handler := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthDeletedUser(t *testing.T) {
	a, tokens, users := setupAuthMiddlewareDB(t)
	id := createMiddlewareUser(t, users, "gone@example.com", false)
	token, err := tokens.Issue(id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := users.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	handler := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	a, tokens, users := setupAuthMiddlewareDB(t)
	id := createMiddlewareUser(t, users, "alice@example.com", false)
	token, err := tokens.Issue(id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotAC auth.AuthContext
	handler := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAC, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.UserID != id {
		t.Errorf("UserID = %d, want %d", gotAC.UserID, id)
	}
	if gotAC.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", gotAC.Email)
	}
	if gotAC.IsAdmin {
		t.Error("IsAdmin = true, want false")
	}
}

func TestRequireAdmin(t *testing.T) {
	a, tokens, users := setupAuthMiddlewareDB(t)
	adminID := createMiddlewareUser(t, users, "admin@example.com", true)
	memberID := createMiddlewareUser(t, users, "member@example.com", false)

	handler := RequireAuth(a)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name   string
		userID int64
		want   int
	}{
		{"admin", adminID, http.StatusOK},
		{"member", memberID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tokens.Issue(tt.userID)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]bool{
		"Bearer abc": true,
		"bearer abc": true,
		"Basic abc":  false,
		"Bearer ":    false,
		"":           false,
	}
	for header, want := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", header)
		if _, ok := bearerToken(req); ok != want {
			t.Errorf("bearerToken(%q) ok = %v, want %v", header, ok, want)
		}
	}
}

func TestAuthenticateClassifiesErrors(t *testing.T) {
	a, tokens, users := setupAuthMiddlewareDB(t)
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, "garbage"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("bad token err = %v, want ErrUnauthenticated", err)
	}

	id := createMiddlewareUser(t, users, "gone@example.com", false)
	token, _ := tokens.Issue(id)
	if err := users.Delete(ctx, id); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	_, err := a.Authenticate(ctx, token)
	if !errors.Is(err, auth.ErrUnauthenticated) || !errors.Is(err, ErrUnknownUser) {
		t.Errorf("deleted user err = %v, want ErrUnauthenticated wrapping ErrUnknownUser", err)
	}

	broken := NewAuthenticator(tokens, brokenUsers{}, quietLogger())
	if _, err := broken.Authenticate(ctx, token); err == nil || errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("lookup failure err = %v, want a server error", err)
	}
}

func TestRequireAuthLookupFailure(t *testing.T) {
	_, tokens, _ := setupAuthMiddlewareDB(t)
	a := NewAuthenticator(tokens, brokenUsers{}, quietLogger())
	token, _ := tokens.Issue(1)

	handler := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
