package handlers

import (
	"net/http"

	"crowdfund/internal/ledger"
)

type donateRequest struct {
	Amount string `json:"amount"`
}

func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	var req donateRequest
	if !a.decode(w, r, &req) {
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.Engine.Donate(r.Context(), id, caller, amount)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, newDonationView(*d))
}

func (a *App) DonationsList(w http.ResponseWriter, r *http.Request) {
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	list, err := a.Engine.Donations(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]donationView, 0, len(list))
	for _, d := range list {
		items = append(items, newDonationView(d))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
