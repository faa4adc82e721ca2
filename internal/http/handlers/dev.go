package handlers

import (
	"net/http"
	"time"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
	"crowdfund/internal/middleware"
)

const devTokenTTL = 24 * time.Hour

type devTokenRequest struct {
	Address string `json:"address"`
	Locale  string `json:"locale"`
}

type devTokenResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DevIssueToken signs a bearer token for any address. It is only routed when
// the in-memory token backend is active.
func (a *App) DevIssueToken(w http.ResponseWriter, r *http.Request) {
	var req devTokenRequest
	if !a.decode(w, r, &req) {
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	now := a.now()
	token, err := middleware.SignJWT(a.JWTSecret, a.JWTIssuer, addr, locale, devTokenTTL, now)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, devTokenResponse{
		Token:     token,
		Address:   addr.Hex(),
		ExpiresAt: now.Add(devTokenTTL).UTC(),
	})
}

type devAmountRequest struct {
	Amount string `json:"amount"`
}

// DevMint credits the caller with test tokens.
func (a *App) DevMint(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := a.devAmount(w, r)
	if !ok {
		return
	}
	if err := a.DevTokens.Mint(caller, amount); err != nil {
		a.fail(w, r, err)
		return
	}
	a.devBalance(w, r, caller)
}

// DevApprove lets the custody account pull up to amount from the caller.
func (a *App) DevApprove(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := a.devAmount(w, r)
	if !ok {
		return
	}
	a.DevTokens.Approve(caller, a.DevTokens.Custody(), amount)
	a.devBalance(w, r, caller)
}

func (a *App) DevBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	a.devBalance(w, r, caller)
}

func (a *App) devAmount(w http.ResponseWriter, r *http.Request) (domain.Address, ledger.Amount, bool) {
	caller, ok := a.caller(w, r)
	if !ok {
		return domain.ZeroAddress, ledger.Zero, false
	}
	var req devAmountRequest
	if !a.decode(w, r, &req) {
		return domain.ZeroAddress, ledger.Zero, false
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		a.fail(w, r, err)
		return domain.ZeroAddress, ledger.Zero, false
	}
	return caller, amount, true
}

func (a *App) devBalance(w http.ResponseWriter, r *http.Request, owner domain.Address) {
	allowance, _ := a.DevTokens.Allowance(r.Context(), owner, a.DevTokens.Custody())
	a.json(w, http.StatusOK, map[string]any{
		"address":   owner.Hex(),
		"balance":   a.DevTokens.BalanceOf(owner),
		"allowance": allowance,
		"custody":   a.DevTokens.Custody().Hex(),
	})
}
