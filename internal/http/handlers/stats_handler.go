package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/repo"
)

// StatsResponse summarizes the bot's state.
type StatsResponse struct {
	Reminders  ReminderCounts        `json:"reminders"`
	Deliveries *repo.DeliverySummary `json:"deliveries,omitempty"`
	Sessions   int                   `json:"active_sessions"`
}

// ReminderCounts splits reminders by status.
type ReminderCounts struct {
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Stats returns reminder, delivery and session counters.
func (h *Handlers) Stats(c *gin.Context) {
	var resp StatsResponse
	for _, r := range h.d.Reminders.List(nil) {
		switch r.Status {
		case domain.StatusActive:
			resp.Reminders.Active++
		case domain.StatusExpired:
			resp.Reminders.Expired++
		}
	}
	if h.d.DB != nil {
		sum, err := repo.DeliveryStats(c.Request.Context(), h.d.DB)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
			return
		}
		resp.Deliveries = &sum
	}
	if h.d.Sessions != nil {
		resp.Sessions = h.d.Sessions()
	}
	ok(c, http.StatusOK, resp)
}
