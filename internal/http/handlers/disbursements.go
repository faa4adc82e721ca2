package handlers

import (
	"context"
	"net/http"

	"crowdfund/internal/domain"
)

type withdrawRequest struct {
	GoalBased bool `json:"goal_based"`
}

type campaignAction func(ctx context.Context, id uint64, caller domain.Address) (*domain.Campaign, error)

// creatorAction adapts an engine call that only needs the campaign and caller.
func (a *App) creatorAction(action campaignAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := a.caller(w, r)
		if !ok {
			return
		}
		id, ok := a.campaignID(w, r)
		if !ok {
			return
		}
		c, err := action(r.Context(), id, caller)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, newCampaignView(*c))
	}
}

func (a *App) AutoDisburse(w http.ResponseWriter, r *http.Request) {
	a.creatorAction(a.Engine.AutoDisburse)(w, r)
}

func (a *App) ManualDisburse(w http.ResponseWriter, r *http.Request) {
	a.creatorAction(a.Engine.ManualDisburse)(w, r)
}

func (a *App) EndCampaign(w http.ResponseWriter, r *http.Request) {
	a.creatorAction(a.Engine.EndCampaign)(w, r)
}

func (a *App) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.creatorAction(func(ctx context.Context, id uint64, caller domain.Address) (*domain.Campaign, error) {
		return a.Engine.Withdraw(ctx, id, caller, req.GoalBased)
	})(w, r)
}

func (a *App) Refund(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	c, err := a.Engine.Refund(r.Context(), id, caller)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newContributionView(*c))
}

// RefundStatus answers whether donor could claim a refund right now. The
// donor query parameter defaults to the authenticated caller.
func (a *App) RefundStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	donor, ok := a.donorParam(w, r)
	if !ok {
		return
	}
	can, err := a.Engine.CanRefund(r.Context(), id, donor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	isDonor, err := a.Engine.IsDonor(r.Context(), id, donor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"donor":      donor.Hex(),
		"can_refund": can,
		"is_donor":   isDonor,
	})
}

func (a *App) ContributionGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	donor, ok := a.donorParam(w, r)
	if !ok {
		return
	}
	c, err := a.Engine.Contribution(r.Context(), id, donor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newContributionView(*c))
}

func (a *App) donorParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	raw := r.URL.Query().Get("donor")
	if raw == "" {
		return a.caller(w, r)
	}
	donor, err := domain.ParseAddress(raw)
	if err != nil {
		a.fail(w, r, err)
		return domain.ZeroAddress, false
	}
	return donor, true
}
