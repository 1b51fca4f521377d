// Package repo implements the relational persistence layer backed by GORM.
// This file provides repository functions for the KnownChat directory.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertKnownChat(ctx, db, chat) -> error
//     Inserts the chat or refreshes kind/title/username of an existing row.
//
//   - GetKnownChat(ctx, db, chatID) -> *domain.KnownChat, error
//     Fetches a single chat by id, or ErrNotFound if missing.
//
//   - FindChatByUsername(ctx, db, username) -> *domain.KnownChat, error
//     Looks up a private chat by its lower-cased handle.
//
//   - CountKnownChats / ListKnownChatsPage
//     Paginated listing, most recently active first.
//
// This repository is wrapped by services.DirectoryService, which normalizes
// usernames and decides which destinations are reachable.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertKnownChat inserts chat or, when the chat id already exists, updates
// its kind, title, username and UpdatedAt. CreatedAt of existing rows is kept.
func UpsertKnownChat(ctx context.Context, db *gorm.DB, chat domain.KnownChat) error {
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "title", "username", "updated_at"}),
		}).
		Create(&chat).Error
}

// GetKnownChat fetches a chat by id. If the record does not exist, it
// returns ErrNotFound.
func GetKnownChat(ctx context.Context, db *gorm.DB, chatID int64) (*domain.KnownChat, error) {
	var c domain.KnownChat
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChatByUsername returns the private chat registered under username
// (already lower-cased, without "@"). When several rows share the handle the
// most recently updated wins.
func FindChatByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.KnownChat, error) {
	var c domain.KnownChat
	err := db.WithContext(ctx).
		Where("username = ? AND kind = ?", username, domain.ChatPrivate).
		Order("updated_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountKnownChats returns the number of chats in the directory.
func CountKnownChats(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.KnownChat{}).
		Count(&total).Error
	return total, err
}

// ListKnownChatsPage returns a page of chats ordered by last activity
// descending. The caller computes offset and limit.
func ListKnownChatsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.KnownChat, error) {
	var out []domain.KnownChat
	err := db.WithContext(ctx).
		Order("updated_at desc").
		Order("chat_id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
