package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// PutDelivery records a new firing of reminderID at fireAt (unix seconds),
// replacing whatever record the previous firing left behind. The new record
// starts unconfirmed.
func PutDelivery(ctx context.Context, db *gorm.DB, reminderID string, fireAt int64) error {
	now := time.Now().UTC()
	rec := &domain.DeliveryRecord{
		ReminderID: reminderID,
		FireAt:     fireAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reminder_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"fire_at":      fireAt,
				"confirmed":    false,
				"confirmed_at": nil,
				"updated_at":   now,
			}),
		}).
		Create(rec).Error
}

// GetDelivery returns the record of the latest firing of reminderID, or
// ErrNotFound.
func GetDelivery(ctx context.Context, db *gorm.DB, reminderID string) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := db.WithContext(ctx).
		Where("reminder_id = ?", reminderID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ConfirmDelivery marks the record confirmed only if it still describes the
// firing at fireAt. It returns the number of rows changed (0 or 1).
func ConfirmDelivery(ctx context.Context, db *gorm.DB, reminderID string, fireAt int64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.DeliveryRecord{}).
		Where("reminder_id = ? AND fire_at = ?", reminderID, fireAt).
		Updates(map[string]any{
			"confirmed":    true,
			"confirmed_at": at.UTC(),
			"updated_at":   time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteDelivery drops the record of reminderID. Deleting a missing record
// is not an error.
func DeleteDelivery(ctx context.Context, db *gorm.DB, reminderID string) error {
	return db.WithContext(ctx).
		Where("reminder_id = ?", reminderID).
		Delete(&domain.DeliveryRecord{}).Error
}
