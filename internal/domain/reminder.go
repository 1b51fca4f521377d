// Package domain defines the core reminder types shared by the store,
// scheduler, conversation engine and transport, plus the GORM models for the
// chat directory and delivery records.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a reminder.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// PartKind distinguishes text parts from attachment references.
type PartKind string

const (
	PartText     PartKind = "text"
	PartPhoto    PartKind = "photo"
	PartDocument PartKind = "document"
)

var (
	// ErrNoMessages is returned when a reminder carries no message parts.
	ErrNoMessages = errors.New("reminder needs at least one message part")

	// ErrInvalidPart is returned for an empty text part or an attachment
	// without a file reference.
	ErrInvalidPart = errors.New("message part is empty or has an unknown type")

	// ErrMissingID is returned when a reminder has no identifier.
	ErrMissingID = errors.New("reminder id is empty")
)

// MessagePart is one element of a reminder payload. Text parts carry Text;
// photo and document parts carry the transport's FileID.
type MessagePart struct {
	Kind     PartKind `json:"type"`
	Text     string   `json:"text,omitempty"`
	FileID   string   `json:"file_id,omitempty"`
	FileName string   `json:"file_name,omitempty"`
}

// TextPart builds a text message part.
func TextPart(s string) MessagePart {
	return MessagePart{Kind: PartText, Text: s}
}

// Validate checks the part carries the payload its kind needs.
func (p MessagePart) Validate() error {
	switch p.Kind {
	case PartText:
		if strings.TrimSpace(p.Text) == "" {
			return ErrInvalidPart
		}
	case PartPhoto, PartDocument:
		if strings.TrimSpace(p.FileID) == "" {
			return ErrInvalidPart
		}
	default:
		return ErrInvalidPart
	}
	return nil
}

// IsAttachment reports whether the part references a file.
func (p MessagePart) IsAttachment() bool {
	return p.Kind == PartPhoto || p.Kind == PartDocument
}

// Reminder is a persisted schedule plus its message payload and destination.
//
// Fields:
//   - ID: short random identifier, immutable once created.
//   - OwnerChatID / OwnerUserID: where and by whom the reminder was defined.
//   - TargetChatID: delivery destination (may be a group).
//   - Frequency / TimeOfDay: recurrence policy, evaluated in the fixed offset.
//   - EndDate: recurring reminders stop after this calendar date.
//   - Messages: ordered delivery payload, never empty.
//   - RequestConfirmation: attach a "Done" button to each firing.
//   - LastFiredAt: nil before the first firing.
//   - NextFireAt: cached next firing; nil once expired.
type Reminder struct {
	ID                  string        `json:"id"`
	OwnerChatID         int64         `json:"owner_chat_id"`
	OwnerUserID         int64         `json:"owner_user_id"`
	TargetChatID        int64         `json:"target_chat_id"`
	Frequency           Frequency     `json:"frequency"`
	TimeOfDay           TimeOfDay     `json:"time_of_day"`
	EndDate             *Date         `json:"end_date"`
	Messages            []MessagePart `json:"messages"`
	RequestConfirmation bool          `json:"request_confirmation"`
	Status              Status        `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	LastFiredAt         *time.Time    `json:"last_fired_at"`
	NextFireAt          *time.Time    `json:"next_fire_at"`
}

// Validate checks the structural invariants every stored reminder must hold.
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	if err := r.Frequency.Validate(); err != nil {
		return err
	}
	if !r.TimeOfDay.Valid() {
		return ErrInvalidTimeOfDay
	}
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for i, p := range r.Messages {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i+1, err)
		}
	}
	switch r.Status {
	case StatusActive, StatusExpired, StatusDeleted:
	default:
		return fmt.Errorf("unknown status %q", string(r.Status))
	}
	return nil
}

// Clone returns a deep copy so callers can never alias store-owned memory.
func (r Reminder) Clone() Reminder {
	out := r
	out.Frequency = r.Frequency.Clone()
	if r.EndDate != nil {
		d := *r.EndDate
		out.EndDate = &d
	}
	if r.Messages != nil {
		out.Messages = append([]MessagePart(nil), r.Messages...)
	}
	if r.LastFiredAt != nil {
		t := *r.LastFiredAt
		out.LastFiredAt = &t
	}
	if r.NextFireAt != nil {
		t := *r.NextFireAt
		out.NextFireAt = &t
	}
	return out
}

// Active reports whether the reminder is still scheduled.
func (r Reminder) Active() bool { return r.Status == StatusActive }

// Preview returns the first text part clipped to n runes, for listings.
func (r Reminder) Preview(n int) string {
	for _, p := range r.Messages {
		if p.Kind != PartText {
			continue
		}
		runes := []rune(p.Text)
		if n > 0 && len(runes) > n {
			return string(runes[:n]) + "..."
		}
		return p.Text
	}
	if len(r.Messages) > 0 {
		return "[" + string(r.Messages[0].Kind) + "]"
	}
	return ""
}

// Confirmation identifies one firing of a reminder. It travels through the
// transport as button callback data ("done:<id>:<unix>").
type Confirmation struct {
	ReminderID string
	FireAt     time.Time
}

const confirmationPrefix = "done:"

// ErrBadConfirmation is returned when callback data is not a confirmation.
var ErrBadConfirmation = errors.New("malformed confirmation data")

// Data encodes the confirmation for a button payload.
func (c Confirmation) Data() string {
	return confirmationPrefix + c.ReminderID + ":" + strconv.FormatInt(c.FireAt.Unix(), 10)
}

// IsConfirmationData reports whether s looks like a confirmation payload.
func IsConfirmationData(s string) bool {
	return strings.HasPrefix(s, confirmationPrefix)
}

// ParseConfirmation decodes a payload produced by Confirmation.Data.
func ParseConfirmation(s string) (Confirmation, error) {
	rest, ok := strings.CutPrefix(s, confirmationPrefix)
	if !ok {
		return Confirmation{}, ErrBadConfirmation
	}
	id, ts, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return Confirmation{}, ErrBadConfirmation
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Confirmation{}, ErrBadConfirmation
	}
	return Confirmation{ReminderID: id, FireAt: time.Unix(unix, 0).UTC()}, nil
}
