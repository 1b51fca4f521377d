package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// Chats adapts the package-level chat functions to services.ChatRepo.
type Chats struct{}

func (Chats) UpsertKnownChat(ctx context.Context, db *gorm.DB, chat domain.KnownChat) error {
	return UpsertKnownChat(ctx, db, chat)
}

func (Chats) GetKnownChat(ctx context.Context, db *gorm.DB, chatID int64) (*domain.KnownChat, error) {
	return GetKnownChat(ctx, db, chatID)
}

func (Chats) FindChatByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.KnownChat, error) {
	return FindChatByUsername(ctx, db, username)
}

func (Chats) CountKnownChats(ctx context.Context, db *gorm.DB) (int64, error) {
	return CountKnownChats(ctx, db)
}

func (Chats) ListKnownChatsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.KnownChat, error) {
	return ListKnownChatsPage(ctx, db, offset, limit)
}

// Deliveries adapts the package-level delivery functions to
// services.DeliveryRepo.
type Deliveries struct{}

func (Deliveries) PutDelivery(ctx context.Context, db *gorm.DB, reminderID string, fireAt int64) error {
	return PutDelivery(ctx, db, reminderID, fireAt)
}

func (Deliveries) GetDelivery(ctx context.Context, db *gorm.DB, reminderID string) (*domain.DeliveryRecord, error) {
	return GetDelivery(ctx, db, reminderID)
}

func (Deliveries) ConfirmDelivery(ctx context.Context, db *gorm.DB, reminderID string, fireAt int64, at time.Time) (int64, error) {
	return ConfirmDelivery(ctx, db, reminderID, fireAt, at)
}

func (Deliveries) DeleteDelivery(ctx context.Context, db *gorm.DB, reminderID string) error {
	return DeleteDelivery(ctx, db, reminderID)
}
