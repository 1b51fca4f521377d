// Admin HTTP handlers.
//
// The admin API is a read-mostly window onto the running bot:
//   - GET    /reminders        (list, filtered and paginated)
//   - GET    /reminders/{id}   (one reminder plus its latest delivery)
//   - DELETE /reminders/{id}   (delete; the scheduler drops it on its next wake)
//   - GET    /chats            (known chats, paginated, ETag support)
//   - GET    /stats            (counters across reminders, deliveries, sessions)
//
// Handlers are transport-thin: they validate input, call the store and
// services, and translate results into HTTP responses.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/utils"
)

// ReminderStore is the part of the reminder store the admin API reads and
// deletes through.
type ReminderStore interface {
	List(pred func(domain.Reminder) bool) []domain.Reminder
	Get(id string) (domain.Reminder, error)
	Delete(ctx context.Context, id string) error
}

// ChatDirectory lists the chats the bot has seen.
type ChatDirectory interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.KnownChat, int64, error)
}

// Deliveries exposes firing records.
type Deliveries interface {
	Latest(ctx context.Context, reminderID string) (*domain.DeliveryRecord, error)
	Forget(ctx context.Context, reminderID string) error
}

// Deps wires the handlers. DB and Sessions are optional; without DB the chat
// list skips its ETag and /stats omits delivery totals.
type Deps struct {
	Reminders  ReminderStore
	Chats      ChatDirectory
	Deliveries Deliveries
	DB         *gorm.DB
	// Sessions reports the number of wizards in progress.
	Sessions func() int
	// OnFatal receives store errors the process cannot continue after.
	OnFatal func(error)
}

// Handlers groups the admin endpoints.
type Handlers struct {
	d Deps
}

// New constructs and returns a Handlers instance bound to d.
func New(d Deps) *Handlers {
	return &Handlers{d: d}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size, defaulting to 20 per page and
// capping at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"), 20, 100)
}
