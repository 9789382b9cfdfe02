package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/model"
	"github.com/dukerupert/rewear/internal/store"
)

type AuthHandler struct {
	userStore    *store.UserStore
	tokens       *auth.TokenIssuer
	signupPoints int
	logger       *slog.Logger
}

func NewAuthHandler(us *store.UserStore, tokens *auth.TokenIssuer, signupPoints int, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		tokens:       tokens,
		signupPoints: signupPoints,
		logger:       logger,
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string      `json:"message,omitempty"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	// A bare address only; "Name <addr>" forms would be stored verbatim and
	// never match a login.
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "first_name and last_name are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	user, err := h.userStore.Create(r.Context(), store.NewUser{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Points:       h.signupPoints,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusBadRequest, "User already exists with this email")
		return
	}
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    user,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}
	// Unknown email and wrong password look the same to the client.
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   token,
		User:    user,
	})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("load profile", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching profile")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
