package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tokenizr-backend/api/controllers"
	"github.com/angelmondragon/tokenizr-backend/api/middleware"
	"github.com/angelmondragon/tokenizr-backend/internal/drafts"
	"github.com/angelmondragon/tokenizr-backend/internal/ledger"
	"github.com/angelmondragon/tokenizr-backend/internal/notifications"
	"github.com/angelmondragon/tokenizr-backend/internal/tokenization"
	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	idempotencyStore redis.IdempotencyStore,
	live notifications.LiveSubscriber,
	draftService drafts.Service,
	tokenizationService tokenization.Service,
	notificationsService notifications.Service,
	auditLedger ledger.Service,
	deadLetters controllers.DeadLetterReader,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(cfg.App.CORSOrigins...),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if redisP != nil {
		deps["redis"] = redisP
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if idempotencyStore != nil {
			r.Use(middleware.Idempotency(idempotencyStore, cfg.Eventing.RequestIdempotencyTTL, logg))
		}

		r.Route("/tokenizations", func(r chi.Router) {
			r.Post("/", controllers.CreateTokenizationDraft(draftService, logg))
			r.Get("/", controllers.ListTokenizationDrafts(draftService, logg))
			r.Get("/{draftId}", controllers.GetTokenizationDraft(draftService, logg))
			r.Patch("/{draftId}", controllers.UpdateTokenizationDraft(draftService, logg))
			r.Delete("/{draftId}", controllers.DeleteTokenizationDraft(draftService, logg))
			r.Post("/{draftId}/submit", controllers.SubmitTokenizationDraft(tokenizationService, logg))
			r.Post("/{draftId}/cancel", controllers.CancelTokenizationDraft(tokenizationService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Get("/stream", controllers.StreamNotifications(live, cfg.Live.StreamHeartbeat, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(notificationsService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Route("/tokenizations/{draftId}", func(r chi.Router) {
				r.Post("/approve", controllers.AdminApproveTokenization(tokenizationService, logg))
				r.Post("/reject", controllers.AdminRejectTokenization(tokenizationService, logg))
				r.Post("/cancel", controllers.AdminCancelTokenization(tokenizationService, logg))
				r.Get("/audit", controllers.AdminTokenizationAudit(auditLedger, logg))
			})
			r.Get("/outbox/dead-letters", controllers.AdminListDeadLetters(deadLetters, logg))
			r.Get("/outbox/dead-letters/{eventId}", controllers.AdminGetDeadLetter(deadLetters, logg))
		})
	})

	return r
}
