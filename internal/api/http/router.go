package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/api/http/handlers"
	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/idempotency"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Pools          *handlers.PoolsHandler
	Grants         *handlers.GrantsHandler
	Transfers      *handlers.TransfersHandler
	Accounts       *handlers.AccountsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Idempotency is optional.
	Idempotency *idempotency.Middleware
	// Metrics serves the prometheus registry when set.
	Metrics fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	chain := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}
	if cfg.Idempotency != nil {
		chain = append(chain, cfg.Idempotency.Handle)
	}
	protected := app.Group("", chain...)

	protected.Post("/pools", cfg.Pools.CreatePool)
	protected.Get("/pools", cfg.Pools.ListPools)
	protected.Get("/pools/:id", cfg.Pools.GetPool)
	protected.Post("/pools/:id/fund", cfg.Pools.FundPool)
	protected.Post("/pools/:id/grants", cfg.Pools.CreateGrant)
	protected.Get("/pools/:id/grants", cfg.Pools.ListGrants)

	protected.Get("/grants", cfg.Grants.ListGrants)
	protected.Get("/grants/:id", cfg.Grants.GetGrant)
	protected.Post("/grants/:id/claim", cfg.Grants.Claim)

	protected.Get("/accounts/:id", cfg.Accounts.GetAccount)

	operator := protected.Group("/transfers", auth.RequireRole(domain.RoleOperator))
	operator.Get("", cfg.Transfers.ListTransfers)
	operator.Post("/:id/retry", cfg.Transfers.RetryTransfer)
}
