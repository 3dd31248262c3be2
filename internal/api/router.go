package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/brinkadata/brinkadata-platform/internal/api/handler"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/asset"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/events"
	"github.com/brinkadata/brinkadata-platform/internal/scenario"
)

// AccountStore is the subset of account.Repository the router's handlers use.
type AccountStore interface {
	handler.AccountReader
	handler.AccountAdmin
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger    handler.DBPinger
	Version     string
	Env         string
	IsDev       bool
	OpenAPISpec []byte

	Authenticator middleware.Authenticator
	AuthService   handler.AuthService
	ResumeBroker  handler.ResumeBroker
	Accounts      AccountStore
	Subscriptions handler.SubscriptionWriter
	Assets        asset.Repository
	Scenarios     scenario.Repository
	Publisher     events.Publisher

	Redis          *redis.Client
	RateLimit      middleware.RateLimitConfig
	AllowedOrigins []string

	// TrustProxyHeaders takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers; the rate limiter
	// keys on the resulting address.
	TrustProxyHeaders bool
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Version, deps.Env)
	r.Get("/health", healthHandler.ServeHTTP)

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	authn := middleware.Auth(deps.Authenticator)
	limited := middleware.RateLimit(deps.Redis, deps.RateLimit)

	authHandler := handler.NewAuthHandler(deps.AuthService, deps.ResumeBroker)
	accountHandler := handler.NewAccountHandler(deps.Accounts, deps.Assets)
	upgradeHandler := handler.NewUpgradeHandler(deps.Subscriptions, deps.Publisher)

	r.Route("/auth", func(r chi.Router) {
		r.With(limited).Post("/register", authHandler.Register)
		r.With(limited).Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.With(limited).Post("/resume", authHandler.Resume)
		r.With(authn).Post("/resume/request", authHandler.RequestResume)
		r.With(authn).Get("/capabilities", accountHandler.Capabilities)
	})

	r.Route("/account", func(r chi.Router) {
		r.Get("/plans", accountHandler.Plans)
		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/capabilities", accountHandler.Capabilities)
			r.Get("/info", accountHandler.Info)
			r.With(middleware.RequireRole(entitlements.RoleOwner)).Post("/upgrade", upgradeHandler.Upgrade)
		})
	})

	adminHandler := handler.NewAdminHandler(deps.Subscriptions, deps.Accounts, deps.Publisher)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.DevOnly(deps.IsDev))
		r.Use(authn)
		r.Post("/set_plan", adminHandler.SetPlan)
		r.Post("/set_role", adminHandler.SetRole)
		r.Post("/set_subscription_status", adminHandler.SetSubscriptionStatus)
		r.Get("/accounts", adminHandler.ListAccounts)
	})

	assetHandler := handler.NewAssetHandler(deps.Assets)
	scenarioHandler := handler.NewScenarioHandler(deps.Assets, deps.Scenarios)
	r.Route("/assets", func(r chi.Router) {
		r.Use(authn)
		view := middleware.RequireCapability(entitlements.CapAssetView)
		manage := middleware.RequireCapability(entitlements.CapAssetManage)

		r.With(manage).Post("/", assetHandler.Create)
		r.With(view).Get("/", assetHandler.List)
		r.With(view).Get("/{id}", assetHandler.GetByID)
		r.With(manage).Patch("/{id}", assetHandler.Update)
		r.With(manage).Delete("/{id}", assetHandler.Delete)
		r.With(view).Get("/trash", assetHandler.Trash)
		r.With(manage).Post("/{id}/restore", assetHandler.Restore)

		r.With(view).Get("/{id}/scenarios", scenarioHandler.List)
		r.With(manage).Put("/{id}/scenarios/{slot}", scenarioHandler.Save)
		r.With(manage).Delete("/{id}/scenarios/{slot}", scenarioHandler.Clear)
	})

	return r
}
