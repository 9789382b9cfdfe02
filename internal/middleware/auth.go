package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/model"
)

var ErrUnknownUser = errors.New("token user no longer exists")

// TokenParser verifies a bearer token and returns its user.
type TokenParser interface {
	Parse(token string) (int64, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// Authenticator turns a bearer token into an AuthContext. The user row is
// loaded on every request so deleted accounts and admin changes apply
// immediately.
type Authenticator struct {
	tokens TokenParser
	users  UserLookup
	logger *slog.Logger
}

func NewAuthenticator(tokens TokenParser, users UserLookup, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (auth.AuthContext, error) {
	userID, err := a.tokens.Parse(token)
	if err != nil {
		return auth.AuthContext{}, fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)
	}
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return auth.AuthContext{}, fmt.Errorf("load token user: %w", err)
	}
	if u == nil {
		return auth.AuthContext{}, fmt.Errorf("%w: %w", auth.ErrUnauthenticated, ErrUnknownUser)
	}
	return auth.AuthContext{UserID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}, nil
}

// RequireAuth validates the Authorization: Bearer header and populates
// AuthContext.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Access token required")
				return
			}

			ac, err := a.Authenticate(r.Context(), token)
			if errors.Is(err, auth.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			if err != nil {
				a.logger.Error("authenticate request", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "Server error")
				return
			}

			noteUser(r.Context(), ac.UserID)
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user is an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
