// Package services – ChatService
//
// This file implements ChatService, the directory of chats the bot has seen.
// Every inbound event refreshes the sender's chat (and, for private chats,
// the user's handle), which is what lets a reminder be addressed "To
// Username" and what decides whether a destination is reachable: the bot can
// only deliver to chats it has seen traffic from, plus the configured
// default group.
package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// ChatRepo defines the repository contract required by ChatService.
type ChatRepo interface {
	// UpsertKnownChat inserts or refreshes a chat row.
	UpsertKnownChat(ctx context.Context, db *gorm.DB, chat domain.KnownChat) error

	// GetKnownChat fetches a chat by id.
	GetKnownChat(ctx context.Context, db *gorm.DB, chatID int64) (*domain.KnownChat, error)

	// FindChatByUsername looks a private chat up by normalized handle.
	FindChatByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.KnownChat, error)

	// CountKnownChats returns the total number of chats for pagination.
	CountKnownChats(ctx context.Context, db *gorm.DB) (int64, error)

	// ListKnownChatsPage returns a page of chats.
	ListKnownChatsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.KnownChat, error)
}

// ChatService resolves and validates reminder destinations.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the chat repository used by this service.
	Repo ChatRepo

	// DefaultGroupID is the "To Group" destination; 0 disables it.
	DefaultGroupID int64
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewChatService constructs a ChatService with sane defaults.
func NewChatService(db *gorm.DB, r ChatRepo, defaultGroupID int64) *ChatService {
	return &ChatService{
		DB:             db,
		Repo:           r,
		DefaultGroupID: defaultGroupID,
		TitleMaxLen:    120,
	}
}

// Remember records that the bot has seen chat. Handles are normalized and
// titles clipped before storing.
func (s *ChatService) Remember(ctx context.Context, chat domain.KnownChat) error {
	chat.Username = NormalizeUsername(chat.Username)
	chat.Title = s.clip(normalizeTitle(chat.Title))
	if chat.Kind == "" {
		chat.Kind = domain.ChatPrivate
	}
	return s.Repo.UpsertKnownChat(ctx, s.DB, chat)
}

// ResolveUsername returns the private chat id registered for username
// (with or without "@", any case). ErrChatNotFound means the user has never
// talked to the bot.
func (s *ChatService) ResolveUsername(ctx context.Context, username string) (int64, error) {
	u := NormalizeUsername(username)
	if u == "" || !usernameRE.MatchString(u) {
		return 0, ErrChatNotFound
	}
	c, err := s.Repo.FindChatByUsername(ctx, s.DB, u)
	if err != nil {
		if isNotFound(err) {
			return 0, ErrChatNotFound
		}
		return 0, err
	}
	return c.ChatID, nil
}

// DefaultGroup returns the configured default group or ErrNoDefaultGroup.
func (s *ChatService) DefaultGroup() (int64, error) {
	if s.DefaultGroupID == 0 {
		return 0, ErrNoDefaultGroup
	}
	return s.DefaultGroupID, nil
}

// EnsureReachable returns nil when chatID is the default group or a chat in
// the directory, ErrDestinationUnreachable otherwise.
func (s *ChatService) EnsureReachable(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return ErrDestinationUnreachable
	}
	if s.DefaultGroupID != 0 && chatID == s.DefaultGroupID {
		return nil
	}
	if _, err := s.Repo.GetKnownChat(ctx, s.DB, chatID); err != nil {
		if isNotFound(err) {
			return ErrDestinationUnreachable
		}
		return err
	}
	return nil
}

// ListPage returns a page of known chats and the total count.
func (s *ChatService) ListPage(ctx context.Context, page, pageSize int) ([]domain.KnownChat, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountKnownChats(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.KnownChat{}, 0, nil
	}

	items, err := s.Repo.ListKnownChatsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// NormalizeUsername strips whitespace and a leading "@", and lower-cases.
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}

// clip truncates a title to the configured maximum rune length.
func (s *ChatService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var (
	// whitespaceRE collapses consecutive whitespace to a single space.
	whitespaceRE = regexp.MustCompile(`\s+`)

	// usernameRE matches Telegram handles (5-32 chars, letters, digits, underscore).
	usernameRE = regexp.MustCompile(`^[a-z0-9_]{5,32}$`)
)
