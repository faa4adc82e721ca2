package handlers

import (
	"net/http"
)

func (a *App) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.Engine.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"campaigns":       s.Campaigns,
		"active":          s.Active,
		"goal_reached":    s.GoalReached,
		"disbursed":       s.Disbursed,
		"ended":           s.Ended,
		"donations":       s.Donations,
		"total_raised":    s.TotalRaised,
		"total_disbursed": s.TotalDisbursed,
		"total_refunded":  s.TotalRefunded,
	})
}
