package domain

import "time"

// Chat kinds as reported by the transport.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// KnownChat is a chat the bot has seen traffic from. The directory is what
// makes a destination "reachable" and what resolves @usernames.
//
// Fields:
//   - ChatID: transport chat identifier (primary key, not auto-incremented).
//   - Kind: private, group, supergroup or channel.
//   - Title: group title, or the user's display name for private chats.
//   - Username: lower-cased handle without "@"; empty when the chat has none.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type KnownChat struct {
	ChatID    int64     `json:"chat_id"   gorm:"primaryKey;autoIncrement:false"`
	Kind      string    `json:"kind"      gorm:"type:varchar(16);not null;default:'private'"`
	Title     string    `json:"title"     gorm:"type:varchar(255)"`
	Username  string    `json:"username"  gorm:"type:varchar(64);index:idx_known_chats_username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for KnownChat.
func (KnownChat) TableName() string { return "known_chats" }

// DeliveryRecord holds the confirmation state of the latest firing of a
// reminder. A new firing overwrites the row, so only one exists per reminder.
//
// Fields:
//   - ReminderID: owning reminder (primary key).
//   - FireAt: scheduled instant of the firing as unix seconds; the firing's identity.
//   - Confirmed / ConfirmedAt: set when the recipient presses "Done".
type DeliveryRecord struct {
	ReminderID  string     `json:"reminder_id"  gorm:"type:varchar(36);primaryKey"`
	FireAt      int64      `json:"fire_at"      gorm:"not null"`
	Confirmed   bool       `json:"confirmed"    gorm:"not null;default:false"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for DeliveryRecord.
func (DeliveryRecord) TableName() string { return "delivery_records" }

// FireTime returns FireAt as a UTC time.
func (d DeliveryRecord) FireTime() time.Time {
	return time.Unix(d.FireAt, 0).UTC()
}
