// Package services – DeliveryTracker
//
// This file implements DeliveryTracker, which owns the confirmation state of
// the latest firing of every reminder. The scheduler records each firing;
// the transport confirms it when the recipient presses "Done". Records live
// in SQLite so a confirmation still works after a restart.
//
// A confirmation carries the fire timestamp it was rendered for. If the
// reminder has fired again since, the confirmation is stale and is ignored
// (ErrStaleConfirmation) without touching the newer record.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// DeliveryRepo defines the repository contract required by DeliveryTracker.
type DeliveryRepo interface {
	// PutDelivery creates or overwrites the record for reminderID.
	PutDelivery(ctx context.Context, db *gorm.DB, reminderID string, fireAt int64) error

	// GetDelivery returns the current record for reminderID.
	GetDelivery(ctx context.Context, db *gorm.DB, reminderID string) (*domain.DeliveryRecord, error)

	// ConfirmDelivery confirms the record if it matches fireAt; returns rows changed.
	ConfirmDelivery(ctx context.Context, db *gorm.DB, reminderID string, fireAt int64, at time.Time) (int64, error)

	// DeleteDelivery drops the record for reminderID.
	DeleteDelivery(ctx context.Context, db *gorm.DB, reminderID string) error
}

// DeliveryTracker records firings and their confirmation.
type DeliveryTracker struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the delivery repository used by this tracker.
	Repo DeliveryRepo
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// NewDeliveryTracker constructs a DeliveryTracker.
func NewDeliveryTracker(db *gorm.DB, r DeliveryRepo) *DeliveryTracker {
	return &DeliveryTracker{DB: db, Repo: r, Now: time.Now}
}

// Record stores a fresh, unconfirmed record for the firing of reminderID at
// fireAt, superseding the previous firing's record.
func (t *DeliveryTracker) Record(ctx context.Context, reminderID string, fireAt time.Time) error {
	ctx, span := otel.Tracer("services/DeliveryTracker").Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("reminder.id", reminderID),
			attribute.Int64("fire_at", fireAt.Unix()),
		),
	)
	defer span.End()

	return t.Repo.PutDelivery(ctx, t.DB, reminderID, fireAt.Unix())
}

// MarkConfirmed confirms the firing of reminderID at fireAt.
//
// Errors:
//   - ErrDeliveryNotFound when the reminder has never fired (or was deleted).
//   - ErrStaleConfirmation when fireAt is not the latest firing; the record
//     is left unchanged.
//
// Confirming an already confirmed firing succeeds.
func (t *DeliveryTracker) MarkConfirmed(ctx context.Context, reminderID string, fireAt time.Time) error {
	ctx, span := otel.Tracer("services/DeliveryTracker").Start(ctx, "MarkConfirmed",
		trace.WithAttributes(
			attribute.String("reminder.id", reminderID),
			attribute.Int64("fire_at", fireAt.Unix()),
		),
	)
	defer span.End()

	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := t.Repo.GetDelivery(ctx, tx, reminderID)
		if err != nil {
			if isNotFound(err) {
				return ErrDeliveryNotFound
			}
			return err
		}
		if rec.FireAt != fireAt.Unix() {
			return ErrStaleConfirmation
		}
		if rec.Confirmed {
			return nil
		}
		n, err := t.Repo.ConfirmDelivery(ctx, tx, reminderID, rec.FireAt, t.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStaleConfirmation
		}
		return nil
	})
}

// Latest returns the record of the most recent firing of reminderID.
func (t *DeliveryTracker) Latest(ctx context.Context, reminderID string) (*domain.DeliveryRecord, error) {
	rec, err := t.Repo.GetDelivery(ctx, t.DB, reminderID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Forget removes the record of a deleted reminder.
func (t *DeliveryTracker) Forget(ctx context.Context, reminderID string) error {
	return t.Repo.DeleteDelivery(ctx, t.DB, reminderID)
}

func (t *DeliveryTracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// isNotFound treats GORM's not-found sentinel (re-exported by repo as
// ErrNotFound) as "not found".
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
