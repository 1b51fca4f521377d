package conversation

import (
	"sync"
	"time"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// Step is the input a session is waiting for.
type Step int

const (
	StepIdle Step = iota
	StepFrequency
	StepTime
	StepDays
	StepMessages
	StepAttachment
	StepEndDate
	StepDestination
	StepUsername
	StepChatID
	StepPickEdit
	StepEditField
	StepPickDelete
)

var stepNames = [...]string{
	StepIdle:        "idle",
	StepFrequency:   "frequency",
	StepTime:        "time",
	StepDays:        "days",
	StepMessages:    "messages",
	StepAttachment:  "attachment",
	StepEndDate:     "end_date",
	StepDestination: "destination",
	StepUsername:    "username",
	StepChatID:      "chat_id",
	StepPickEdit:    "pick_edit",
	StepEditField:   "edit_field",
	StepPickDelete:  "pick_delete",
}

func (s Step) String() string {
	if s >= 0 && int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "unknown"
}

// Field names a part of a reminder the edit flow can change.
type Field string

const (
	FieldTime        Field = "time"
	FieldFrequency   Field = "frequency"
	FieldMessages    Field = "messages"
	FieldEndDate     Field = "end_date"
	FieldDestination Field = "destination"
)

type sessionKey struct {
	chatID int64
	userID int64
}

// session is one wizard in progress. mu serializes events for the same
// chat and user.
type session struct {
	mu sync.Mutex

	key       sessionKey
	step      Step
	createdAt time.Time

	// draft accumulates the reminder. For edits it starts as a copy of the
	// stored record.
	draft domain.Reminder
	texts []domain.MessagePart
	// attachment is set only when the attachment step has been answered.
	attachment *domain.MessagePart

	editID string
	field  Field
}

// Snapshot is a read-only view of a session for callers and tests.
type Snapshot struct {
	Step      Step
	EditID    string
	Field     Field
	Draft     domain.Reminder
	CreatedAt time.Time
}

func (s *session) snapshot() Snapshot {
	d := s.draft.Clone()
	d.Messages = s.parts()
	return Snapshot{Step: s.step, EditID: s.editID, Field: s.field, Draft: d, CreatedAt: s.createdAt}
}

// parts returns the text parts followed by the attachment, if any.
func (s *session) parts() []domain.MessagePart {
	out := append([]domain.MessagePart(nil), s.texts...)
	if s.attachment != nil {
		out = append(out, *s.attachment)
	}
	return out
}

func (s *session) editing() bool { return s.editID != "" }
