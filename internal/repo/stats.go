// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the
// admin API for conditional responses (ETag) and the delivery summary.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// KnownChatsStats returns the number of known chats and the greatest
// UpdatedAt among them (nil when there are none).
func KnownChatsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.KnownChat{}) }
	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Ordered read instead of MAX(), which SQLite returns as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// DeliverySummary aggregates the delivery_records table.
type DeliverySummary struct {
	// Total is the number of reminders that fired at least once.
	Total int64 `json:"total"`
	// Confirmed counts reminders whose latest firing was confirmed.
	Confirmed int64 `json:"confirmed"`
	// LastFireAt is the most recent firing across all reminders, in unix seconds.
	LastFireAt int64 `json:"last_fire_at"`
}

// DeliveryStats summarizes the latest firing of every reminder.
func DeliveryStats(ctx context.Context, db *gorm.DB) (DeliverySummary, error) {
	var s DeliverySummary
	base := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.DeliveryRecord{}) }

	if err := base().Count(&s.Total).Error; err != nil {
		return DeliverySummary{}, err
	}
	if s.Total == 0 {
		return s, nil
	}
	if err := base().Where("confirmed = ?", true).Count(&s.Confirmed).Error; err != nil {
		return DeliverySummary{}, err
	}
	var row struct {
		FireAt int64
	}
	if err := base().Select("fire_at").Order("fire_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return DeliverySummary{}, err
	}
	s.LastFireAt = row.FireAt
	return s, nil
}
