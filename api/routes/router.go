package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumora-ai/lumora-backend/api/controllers"
	webhookcontrollers "github.com/lumora-ai/lumora-backend/api/controllers/webhooks"
	"github.com/lumora-ai/lumora-backend/api/middleware"
	"github.com/lumora-ai/lumora-backend/internal/apikeys"
	"github.com/lumora-ai/lumora-backend/internal/grants"
	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/internal/ratelimit"
	"github.com/lumora-ai/lumora-backend/internal/subscriptions"
	"github.com/lumora-ai/lumora-backend/internal/usage"
	"github.com/lumora-ai/lumora-backend/pkg/config"
	"github.com/lumora-ai/lumora-backend/pkg/db"
	"github.com/lumora-ai/lumora-backend/pkg/idempotency"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
	"github.com/lumora-ai/lumora-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database *db.Client,
	redisClient *redis.Client,
	ledgerService ledger.Service,
	usageService usage.Service,
	planService plans.Service,
	keyService apikeys.Service,
	limiter ratelimit.Service,
	grantService grants.Service,
	subscriptionService subscriptions.Service,
	webhookGuard *idempotency.Manager,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, database, redisClient, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/billing", webhookcontrollers.BillingWebhook(subscriptionService, cfg.Billing, webhookGuard, logg))
	})

	// Session surface: browser clients with identity-provider tokens.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/plans", controllers.ListPlans(planService, logg))
		r.Get("/me/plan", controllers.GetEffectivePlan(planService, logg))

		r.Route("/credits", func(r chi.Router) {
			r.Get("/balance", controllers.GetBalance(ledgerService, logg))
			r.Get("/history", controllers.GetHistory(ledgerService, logg))
		})

		r.Route("/usage", func(r chi.Router) {
			r.Post("/", controllers.RecordUsage(usageService, logg))
			r.Get("/", controllers.ListUsage(usageService, logg))
		})

		r.Route("/keys", func(r chi.Router) {
			r.Post("/", controllers.CreateKey(keyService, logg))
			r.Get("/", controllers.ListKeys(keyService, logg))
			r.Delete("/{keyID}", controllers.RevokeKey(keyService, logg))
		})
	})

	// Key surface: programmatic clients authenticated by API key.
	r.Route("/api/ext/v1", func(r chi.Router) {
		r.Use(middleware.KeyAuth(keyService, logg))

		r.Get("/balance", controllers.GetBalance(ledgerService, logg))
		r.With(middleware.RateLimit(limiter, plans.ScopeGenerate, logg)).
			Post("/generate", controllers.Generate(usageService, planService, logg))
	})

	// Operator surface: internal tooling behind a shared token.
	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.OperatorAuth(cfg.Operator, logg))

		r.Post("/grants/run", controllers.RunGrants(grantService, logg))
		r.Post("/grants/manual", controllers.ManualGrant(ledgerService, logg))
	})

	return r
}
