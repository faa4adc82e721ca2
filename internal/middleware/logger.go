package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"crowdfund/internal/domain"
)

type annotationsKey struct{}

// annotations carries facts learned deeper in the chain, such as the caller
// resolved by AuthJWT, back out to the request logger.
type annotations struct {
	mu      sync.Mutex
	caller  *domain.Address
	locale  string
	country string
}

func annotateCaller(ctx context.Context, caller domain.Address) {
	if a, ok := ctx.Value(annotationsKey{}).(*annotations); ok {
		a.mu.Lock()
		a.caller = &caller
		a.mu.Unlock()
	}
}

func annotateLocale(ctx context.Context, locale, country string) {
	if a, ok := ctx.Value(annotationsKey{}).(*annotations); ok {
		a.mu.Lock()
		a.locale, a.country = locale, country
		a.mu.Unlock()
	}
}

// Logger writes one structured line per request. Server errors log at error
// level, client errors at warn.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			notes := &annotations{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), annotationsKey{}, notes)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			var ev *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				ev = l.Error()
			case status >= http.StatusBadRequest:
				ev = l.Warn()
			default:
				ev = l.Info()
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			ev = ev.Str("request_id", RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("remote_ip", ClientIP(r)).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start))
			notes.mu.Lock()
			if notes.caller != nil {
				ev = ev.Str("caller", notes.caller.Hex())
			}
			if notes.locale != "" {
				ev = ev.Str("locale", notes.locale)
			}
			if notes.country != "" {
				ev = ev.Str("country", notes.country)
			}
			notes.mu.Unlock()
			ev.Msg("request")
		})
	}
}
