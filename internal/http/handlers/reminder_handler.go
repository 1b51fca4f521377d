package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/http/middleware"
	"github.com/tbourn/go-reminder-bot/internal/services"
	"github.com/tbourn/go-reminder-bot/internal/store"
	"github.com/tbourn/go-reminder-bot/internal/utils"
)

// ListRemindersResponse wraps a page of reminders and pagination information.
type ListRemindersResponse struct {
	Reminders  []domain.Reminder `json:"reminders"`
	Pagination Pagination        `json:"pagination"`
}

// ReminderResponse is one reminder with the state of its latest firing.
type ReminderResponse struct {
	domain.Reminder
	Delivery *domain.DeliveryRecord `json:"delivery,omitempty"`
}

// ListReminders returns a page of reminders, soonest first.
//
// Query parameters:
//   - status: active | expired (default: all)
//   - owner: owner user id
//   - chat_id: target chat id
//   - page, page_size
func (h *Handlers) ListReminders(c *gin.Context) {
	page, pageSize := clampPagination(c)

	var status domain.Status
	switch s := strings.ToLower(strings.TrimSpace(c.Query("status"))); s {
	case "", "all":
	case string(domain.StatusActive), string(domain.StatusExpired):
		status = domain.Status(s)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be active, expired or all")
		return
	}
	owner, okOwner := queryInt64(c, "owner")
	target, okTarget := queryInt64(c, "chat_id")
	if !okOwner || !okTarget {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "owner and chat_id must be integers")
		return
	}

	list := h.d.Reminders.List(func(r domain.Reminder) bool {
		return (status == "" || r.Status == status) &&
			(owner == 0 || r.OwnerUserID == owner) &&
			(target == 0 || r.TargetChatID == target)
	})
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].NextFireAt, list[j].NextFireAt
		switch {
		case a == nil && b == nil:
			return list[i].ID < list[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return list[i].ID < list[j].ID
	})

	total := int64(len(list))
	lo, hi := utils.PageBounds(len(list), page, pageSize)
	items := list[lo:hi]
	if items == nil {
		items = []domain.Reminder{}
	}
	ok(c, http.StatusOK, ListRemindersResponse{Reminders: items, Pagination: paginate(page, pageSize, total)})
}

// GetReminder returns one reminder and its latest delivery, if any.
func (h *Handlers) GetReminder(c *gin.Context) {
	r, err := h.d.Reminders.Get(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reminder not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	resp := ReminderResponse{Reminder: r}
	if h.d.Deliveries != nil {
		rec, err := h.d.Deliveries.Latest(c.Request.Context(), r.ID)
		switch {
		case err == nil:
			resp.Delivery = rec
		case !errors.Is(err, services.ErrDeliveryNotFound):
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("reminder_id", r.ID).Msg("latest delivery")
		}
	}
	ok(c, http.StatusOK, resp)
}

// DeleteReminder removes a reminder and its delivery record.
func (h *Handlers) DeleteReminder(c *gin.Context) {
	id := c.Param("id")
	err := h.d.Reminders.Delete(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reminder not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		if errors.Is(err, store.ErrPersistence) && h.d.OnFatal != nil {
			h.d.OnFatal(err)
		}
		return
	}
	if h.d.Deliveries != nil {
		if err := h.d.Deliveries.Forget(c.Request.Context(), id); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("reminder_id", id).Msg("forget delivery record")
		}
	}
	noContent(c)
}

// queryInt64 parses an optional integer query parameter; 0 when absent.
func queryInt64(c *gin.Context, key string) (int64, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}
