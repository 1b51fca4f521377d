package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

func TestPutDelivery_OverwritesPreviousFiring(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t, &domain.DeliveryRecord{})

	if err := PutDelivery(ctx, db, "r1", 100); err != nil {
		t.Fatalf("PutDelivery: %v", err)
	}
	if n, err := ConfirmDelivery(ctx, db, "r1", 100, time.Now()); err != nil || n != 1 {
		t.Fatalf("ConfirmDelivery = %d, %v", n, err)
	}

	// Next firing resets confirmation.
	if err := PutDelivery(ctx, db, "r1", 200); err != nil {
		t.Fatalf("PutDelivery again: %v", err)
	}
	rec, err := GetDelivery(ctx, db, "r1")
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if rec.FireAt != 200 || rec.Confirmed || rec.ConfirmedAt != nil {
		t.Fatalf("record not superseded: %+v", rec)
	}

	var n int64
	db.Model(&domain.DeliveryRecord{}).Count(&n)
	if n != 1 {
		t.Fatalf("rows = %d; want 1", n)
	}
}

func TestConfirmDelivery_StaleFiringChangesNothing(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t, &domain.DeliveryRecord{})

	if err := PutDelivery(ctx, db, "r1", 200); err != nil {
		t.Fatal(err)
	}
	n, err := ConfirmDelivery(ctx, db, "r1", 100, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("ConfirmDelivery(stale) = %d, %v", n, err)
	}
	rec, _ := GetDelivery(ctx, db, "r1")
	if rec.Confirmed {
		t.Fatalf("stale confirmation altered the record")
	}
}

func TestGetAndDeleteDelivery(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t, &domain.DeliveryRecord{})

	if _, err := GetDelivery(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDelivery(missing) = %v", err)
	}
	if err := PutDelivery(ctx, db, "r1", 1); err != nil {
		t.Fatal(err)
	}
	if err := DeleteDelivery(ctx, db, "r1"); err != nil {
		t.Fatalf("DeleteDelivery: %v", err)
	}
	if err := DeleteDelivery(ctx, db, "r1"); err != nil {
		t.Fatalf("DeleteDelivery twice: %v", err)
	}
	if _, err := GetDelivery(ctx, db, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record still present: %v", err)
	}
}
