package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/cache"
	"github.com/dukerupert/rewear/internal/handler"
	"github.com/dukerupert/rewear/internal/ledger"
	"github.com/dukerupert/rewear/internal/metrics"
	"github.com/dukerupert/rewear/internal/middleware"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
	ws "github.com/dukerupert/rewear/internal/websocket"
)

const (
	authRateLimit   = 10
	authRateWindow  = time.Minute
	itemRateLimit   = 5
	itemRateWindow  = 15 * time.Minute
	itemRateMessage = "Too many items created, please try again later."
)

// Options carries the pluggable backends. A nil Cache disables caching.
type Options struct {
	Storage      upload.Storage
	Cache        cache.Cache
	Tokens       *auth.TokenIssuer
	Ledger       ledger.Config
	SignupPoints int
}

type Server struct {
	hub           *ws.Hub
	authH         *handler.AuthHandler
	publicH       *handler.PublicHandler
	itemH         *handler.ItemHandler
	redemptionH   *handler.RedemptionHandler
	adminH        *handler.AdminHandler
	uploadH       *handler.UploadHandler
	authenticator *middleware.Authenticator
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sqlx.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	c := opts.Cache
	if c == nil {
		c = cache.Nop{}
	}

	userStore := store.NewUserStore(db)
	categoryStore := store.NewCategoryStore(db)
	itemStore := store.NewItemStore(db)
	redemptionStore := store.NewRedemptionStore(db)
	statsStore := store.NewStatsStore(db)

	l := ledger.New(db, opts.Ledger, logger.With("component", "ledger"))
	uploader := upload.NewUploader(opts.Storage, logger.With("component", "upload"))

	return &Server{
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, opts.Tokens, opts.SignupPoints, logger.With("component", "auth")),
		publicH:       handler.NewPublicHandler(categoryStore, itemStore, statsStore, uploader, c, logger.With("component", "public")),
		itemH:         handler.NewItemHandler(itemStore, categoryStore, l, uploader, c, hub, logger.With("component", "item")),
		redemptionH:   handler.NewRedemptionHandler(redemptionStore, uploader, logger.With("component", "redemption")),
		adminH:        handler.NewAdminHandler(itemStore, userStore, statsStore, l, uploader, c, hub, logger.With("component", "admin")),
		uploadH:       handler.NewUploadHandler(opts.Storage, logger.With("component", "upload")),
		authenticator: middleware.NewAuthenticator(opts.Tokens, userStore, logger),
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /api/health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler())
	outerMux.HandleFunc("POST /api/auth/register", s.authRateLimited(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.authRateLimited(s.authH.Login))
	outerMux.HandleFunc("GET /api/public/categories", s.publicH.Categories)
	outerMux.HandleFunc("GET /api/public/featured", s.publicH.Featured)
	outerMux.HandleFunc("GET /api/public/stats", s.publicH.Stats)
	outerMux.HandleFunc("GET /api/items", s.itemH.List)
	outerMux.HandleFunc("GET /api/items/{id}", s.itemH.Get)
	outerMux.HandleFunc("GET /uploads/{key}", s.uploadH.Serve)

	// WebSocket clients authenticate with ?token=, browsers cannot set headers on upgrade
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.authenticator.Authenticate, s.logger.With("component", "websocket")))

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.authenticator)
	outerMux.Handle("/", authMiddleware(protectedMux))

	// Apply request logging and metrics middleware
	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return metrics.InstrumentHandler(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) authRateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, "auth", middleware.ByIP, authRateLimit, authRateWindow, "Too many requests, please try again later.")
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/profile", s.authH.Profile)

	// Item API routes
	createLimit := middleware.RateLimit(s.rateLimiter, "item-create", middleware.ByUser, itemRateLimit, itemRateWindow, itemRateMessage)
	mux.Handle("POST /api/items", createLimit(http.HandlerFunc(s.itemH.Create)))
	mux.HandleFunc("GET /api/items/user/my-items", s.itemH.MyItems)
	mux.HandleFunc("PUT /api/items/{id}", s.itemH.Update)
	mux.HandleFunc("DELETE /api/items/{id}", s.itemH.Delete)
	mux.HandleFunc("POST /api/items/{id}/redeem", s.itemH.Redeem)

	// Redemption history
	mux.HandleFunc("GET /api/redemptions/my-redemptions", s.redemptionH.MyRedemptions)
	mux.HandleFunc("GET /api/redemptions/my-items-redeemed", s.redemptionH.MyItemsRedeemed)

	// Admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /api/admin/pending-items", s.adminH.PendingItems)
	adminMux.HandleFunc("POST /api/admin/approve-item/{id}", s.adminH.ApproveItem)
	adminMux.HandleFunc("POST /api/admin/reject-item/{id}", s.adminH.RejectItem)
	adminMux.HandleFunc("GET /api/admin/stats", s.adminH.Stats)
	adminMux.HandleFunc("GET /api/admin/users", s.adminH.Users)
	adminMux.HandleFunc("DELETE /api/admin/users/{id}", s.adminH.DeleteUser)
	mux.Handle("/api/admin/", middleware.RequireAdmin(adminMux))

	mux.HandleFunc("/", routeNotFound)
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{"error": "Route not found"})
}
