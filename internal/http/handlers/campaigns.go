package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

type createCampaignRequest struct {
	Beneficiary  string     `json:"beneficiary"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ImageRef     string     `json:"image_ref"`
	TargetAmount string     `json:"target_amount"`
	Deadline     *time.Time `json:"deadline"`
	DurationDays int        `json:"duration_days"`
}

const maxTitleLen = 200

func (a *App) CampaignsCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req createCampaignRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" || len(req.Title) > maxTitleLen {
		a.error(w, r, http.StatusBadRequest, codeBadRequest)
		return
	}
	beneficiary, err := domain.ParseAddress(req.Beneficiary)
	if err != nil {
		a.fail(w, r, domain.ErrInvalidBeneficiary)
		return
	}
	target, err := ledger.ParseAmount(req.TargetAmount)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var deadline time.Time
	switch {
	case req.Deadline != nil:
		deadline = *req.Deadline
	case req.DurationDays > 0:
		deadline = a.now().Add(time.Duration(req.DurationDays) * 24 * time.Hour)
	default:
		a.fail(w, r, domain.ErrInvalidDeadline)
		return
	}

	c, err := a.Engine.CreateCampaign(r.Context(), domain.NewCampaign{
		Creator:      caller,
		Beneficiary:  beneficiary,
		Title:        req.Title,
		Description:  req.Description,
		ImageRef:     req.ImageRef,
		TargetAmount: target,
		Deadline:     deadline,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/campaigns/"+strconv.FormatUint(c.ID, 10))
	a.json(w, http.StatusCreated, newCampaignView(*c))
}

func (a *App) CampaignsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.Engine.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	state := r.URL.Query().Get("state")
	items := make([]campaignView, 0, len(list))
	for _, d := range list {
		if state != "" && string(d.Campaign.State()) != state {
			continue
		}
		items = append(items, newDetailsView(d))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) CampaignsCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.Engine.Count(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]uint64{"count": n})
}

func (a *App) CampaignsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	d, err := a.Engine.Details(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newDetailsView(d))
}

func (a *App) CampaignEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := a.campaignID(w, r)
	if !ok {
		return
	}
	if a.Events == nil {
		a.error(w, r, http.StatusNotFound, "not_found")
		return
	}
	if _, err := a.Engine.Details(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.Events.ListByCampaign(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
