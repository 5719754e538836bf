package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/servicelink/servicelink-backend/api/controllers"
	paymentcontrollers "github.com/servicelink/servicelink-backend/api/controllers/payments"
	subscriptioncontrollers "github.com/servicelink/servicelink-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/servicelink/servicelink-backend/api/controllers/webhooks"
	"github.com/servicelink/servicelink-backend/api/middleware"
	"github.com/servicelink/servicelink-backend/internal/bookings"
	"github.com/servicelink/servicelink-backend/internal/jobs"
	"github.com/servicelink/servicelink-backend/internal/leads"
	"github.com/servicelink/servicelink-backend/internal/messages"
	"github.com/servicelink/servicelink-backend/internal/payments"
	"github.com/servicelink/servicelink-backend/internal/providers"
	"github.com/servicelink/servicelink-backend/internal/services"
	"github.com/servicelink/servicelink-backend/internal/subscriptions"
	"github.com/servicelink/servicelink-backend/pkg/auth"
	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP layer needs.
type redisStore interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RouterParams bundles everything the API routes depend on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Tokens   *auth.Verifier
	Redis    redisStore
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTPMetrics
	Ready    map[string]controllers.Pinger

	Bookings      bookings.Service
	Payments      payments.Service
	Subscriptions subscriptions.Service
	Jobs          jobs.Service
	Leads         leads.Service
	Providers     providers.Service
	Services      services.Service
	Messages      messages.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.Metrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins, cfg.App.CORSMaxAge),
	)

	messagePolicy := middleware.NewRateLimitPolicy(
		"messages",
		cfg.RateLimit.MessageWindow,
		cfg.RateLimit.MessageIPLimit,
		cfg.RateLimit.MessageUserLimit,
	)
	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhooks",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, p.Redis, logg)).Post("/paystack", webhookcontrollers.PaystackWebhook(p.Payments, logg))
	})

	r.Get("/api/v1/subscriptions/tiers", subscriptioncontrollers.Tiers(p.Subscriptions, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Tokens, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		providerOnly := middleware.RequireRole(logg, enums.UserRoleProvider, enums.UserRoleAdmin)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(p.Bookings, logg))
			r.Get("/", controllers.ListBookings(p.Bookings, logg))
			r.Route("/{bookingId}", func(r chi.Router) {
				r.Get("/", controllers.GetBooking(p.Bookings, logg))
				r.Get("/contact", controllers.BookingContact(p.Providers, logg))
				r.With(providerOnly).Post("/quote", controllers.QuoteBooking(p.Bookings, logg))
				r.Post("/confirm", controllers.ConfirmBooking(p.Bookings, logg))
				r.With(providerOnly).Post("/start", controllers.StartBooking(p.Bookings, logg))
				r.Post("/complete", controllers.CompleteBooking(p.Bookings, logg))
				r.Post("/cancel", controllers.CancelBooking(p.Bookings, logg))
				r.Post("/dispute", controllers.DisputeBooking(p.Bookings, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/verify/{reference}", paymentcontrollers.VerifyPayment(p.Payments, logg))
			r.Get("/history", paymentcontrollers.PaymentHistory(p.Payments, logg))
			r.With(providerOnly).Get("/earnings", paymentcontrollers.ProviderEarnings(p.Payments, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(providerOnly)
			r.Get("/current", subscriptioncontrollers.Current(p.Subscriptions, logg))
			r.Post("/upgrade", subscriptioncontrollers.Upgrade(p.Subscriptions, logg))
			r.Post("/downgrade", subscriptioncontrollers.Downgrade(p.Subscriptions, logg))
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", controllers.CreateJob(p.Jobs, logg))
			r.Get("/", controllers.ListJobs(p.Jobs, logg))
			r.Get("/mine", controllers.ListMyJobs(p.Jobs, logg))
			r.Get("/{jobId}", controllers.GetJob(p.Jobs, logg))
			r.Post("/{jobId}/close", controllers.CloseJob(p.Jobs, logg))
			r.With(providerOnly).Post("/{jobId}/unlock", controllers.UnlockJob(p.Leads, logg))
		})
		r.With(providerOnly).Get("/leads", controllers.ListLeads(p.Leads, logg))

		r.Route("/providers", func(r chi.Router) {
			r.Post("/", controllers.CreateProvider(p.Providers, logg))
			r.Get("/me", controllers.GetMyProvider(p.Providers, logg))
			r.Patch("/me", controllers.UpdateMyProvider(p.Providers, logg))
			r.Route("/me/services", func(r chi.Router) {
				r.Use(providerOnly)
				r.Post("/", controllers.CreateService(p.Services, logg))
				r.Patch("/{serviceId}", controllers.UpdateService(p.Services, logg))
				r.Delete("/{serviceId}", controllers.DeleteService(p.Services, logg))
			})
			r.Get("/{providerId}", controllers.GetProvider(p.Providers, logg))
			r.Get("/{providerId}/services", controllers.ListProviderServices(p.Services, logg))
		})

		r.Route("/messages", func(r chi.Router) {
			r.With(middleware.RateLimit(messagePolicy, p.Redis, logg)).Post("/", controllers.SendMessage(p.Messages, logg))
			r.Get("/conversations", controllers.ListConversations(p.Messages, logg))
			r.Get("/conversations/{partnerId}", controllers.ConversationMessages(p.Messages, logg))
			r.Post("/{messageId}/read", controllers.MarkMessageRead(p.Messages, logg))
			r.Delete("/{messageId}", controllers.DeleteMessage(p.Messages, logg))
		})
	})

	return r
}
