// Package httpapi assembles the HTTP surface of the campaign ledger.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"crowdfund/internal/http/handlers"
	"crowdfund/internal/metrics"
	"crowdfund/internal/middleware"
)

// Options carries the cross-cutting pieces the router wires around the app.
type Options struct {
	Metrics         *metrics.Collector
	Gatherer        prometheus.Gatherer
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(defaultLocale(opts.DefaultLocale), opts.CountryLookup),
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

			r.Get("/stats", app.Stats)
			r.Get("/campaigns", app.CampaignsList)
			r.Get("/campaigns/count", app.CampaignsCount)
			r.Get("/campaigns/{id}", app.CampaignsGet)
			r.Get("/campaigns/{id}/donations", app.DonationsList)
			r.Get("/campaigns/{id}/events", app.CampaignEvents)

			if app.DevTokens != nil {
				r.Post("/dev/token", app.DevIssueToken)
			}
		})

		// Authenticated routes are limited per caller rather than per IP.
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.AuthJWT(app.JWTSecret, app.JWTIssuer),
				middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			)

			r.Post("/campaigns", app.CampaignsCreate)
			r.Post("/campaigns/{id}/donations", app.DonationsCreate)
			r.Post("/campaigns/{id}/disburse/auto", app.AutoDisburse)
			r.Post("/campaigns/{id}/disburse/manual", app.ManualDisburse)
			r.Post("/campaigns/{id}/withdraw", app.Withdraw)
			r.Post("/campaigns/{id}/end", app.EndCampaign)
			r.Post("/campaigns/{id}/refund", app.Refund)
			r.Get("/campaigns/{id}/refund", app.RefundStatus)
			r.Get("/campaigns/{id}/contribution", app.ContributionGet)

			if app.DevTokens != nil {
				r.Post("/dev/mint", app.DevMint)
				r.Post("/dev/approve", app.DevApprove)
				r.Get("/dev/balance", app.DevBalance)
			}
		})
	})

	return r
}

func defaultLocale(locale string) string {
	if locale == "" {
		return "en"
	}
	return locale
}
