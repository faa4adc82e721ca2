package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"crowdfund/internal/campaign"
	"crowdfund/internal/domain"
	"crowdfund/internal/middleware"
	"crowdfund/internal/token"
)

const maxBodyBytes = 64 << 10

// App holds the dependencies shared by all handlers.
type App struct {
	Engine *campaign.Engine
	Logger zerolog.Logger

	// Events serves the audit trail when set.
	Events domain.EventRepository
	// DevTokens enables the development faucet. Leave nil in production.
	DevTokens *token.Memory
	JWTSecret string
	JWTIssuer string
	// Ping reports backing store health.
	Ping func(ctx context.Context) error
	Now  func() time.Time
}

func NewApp(engine *campaign.Engine, logger zerolog.Logger) *App {
	return &App{Engine: engine, Logger: logger, Now: time.Now}
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, r, http.StatusBadRequest, codeBadRequest)
		return false
	}
	return true
}

func (a *App) caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		a.error(w, r, http.StatusUnauthorized, codeUnauthorized)
		return domain.ZeroAddress, false
	}
	return caller, true
}

func (a *App) campaignID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		a.fail(w, r, domain.ErrCampaignNotFound)
		return 0, false
	}
	return id, true
}
