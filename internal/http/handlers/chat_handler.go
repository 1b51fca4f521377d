package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/repo"
)

// ListChatsResponse wraps a page of known chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.KnownChat `json:"chats"`
	Pagination Pagination         `json:"pagination"`
}

// ListChats returns a page of the chats the bot has seen, most recently
// active first. Supports a weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.d.DB != nil {
		count, maxTS, err := repo.KnownChatsStats(ctx, h.d.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"chats:%d:%d:%d:%d"`, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.d.Chats.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.KnownChat{}
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: items, Pagination: paginate(page, pageSize, total)})
}
