package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/recurrence"
	"github.com/tbourn/go-reminder-bot/internal/services"
	"github.com/tbourn/go-reminder-bot/internal/store"
)

var tbilisi = time.FixedZone("UTC+04:00", 4*3600)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, tbilisi)
}

const (
	me    int64 = 1001
	other int64 = 2002
	group int64 = -100777
)

// ---- fakes ----

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDir struct {
	known map[int64]bool
	users map[string]int64
	group int64
}

func (d *fakeDir) ResolveUsername(_ context.Context, u string) (int64, error) {
	if id, ok := d.users[services.NormalizeUsername(u)]; ok {
		return id, nil
	}
	return 0, services.ErrChatNotFound
}

func (d *fakeDir) DefaultGroup() (int64, error) {
	if d.group == 0 {
		return 0, services.ErrNoDefaultGroup
	}
	return d.group, nil
}

func (d *fakeDir) EnsureReachable(_ context.Context, id int64) error {
	if (d.group != 0 && id == d.group) || d.known[id] {
		return nil
	}
	return services.ErrDestinationUnreachable
}

type fakeForgetter struct{ ids []string }

func (f *fakeForgetter) Forget(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

// failingStore refuses every save.
type failingStore struct{ *store.FileStore }

func (failingStore) Create(context.Context, domain.Reminder) error {
	return fmt.Errorf("%w: disk full", store.ErrPersistence)
}

// racingStore hands out ids another commit has already claimed.
type racingStore struct {
	*store.FileStore
	claimed []string
}

func (s *racingStore) NewID() string {
	if len(s.claimed) > 0 {
		id := s.claimed[0]
		s.claimed = s.claimed[1:]
		return id
	}
	return s.FileStore.NewID()
}

// ---- fixture ----

type fixture struct {
	t      *testing.T
	st     *store.FileStore
	dir    *fakeDir
	clk    *clock
	forget *fakeForgetter
	eng    *Engine
	calc   recurrence.Calculator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lg := zerolog.Nop()
	st, err := store.Open(filepath.Join(t.TempDir(), "reminders.json"), store.Options{
		SaveAttempts: 1,
		RetryBackoff: time.Millisecond,
		Logger:       &lg,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	f := &fixture{
		t:   t,
		st:  st,
		clk: &clock{now: at(2026, time.October, 19, 10, 0)}, // Monday
		dir: &fakeDir{
			known: map[int64]bool{me: true, other: true, -100555: true},
			users: map[string]int64{"alice": me, "bob": other},
			group: group,
		},
		forget: &fakeForgetter{},
		calc:   recurrence.New(tbilisi),
	}
	f.eng = New(st, f.dir, f.forget, f.calc, Config{
		Timeout:             15 * time.Minute,
		RequestConfirmation: true,
		Now:                 f.clk.Now,
		Logger:              &lg,
	})
	return f
}

// input turns "/cmd args" into a command event and anything else into text.
func input(chatID, userID int64, s string) Event {
	if strings.HasPrefix(s, "/") {
		return Command(chatID, userID, s)
	}
	return Text(chatID, userID, s)
}

func (f *fixture) sendAs(userID int64, s string) []Reply {
	f.t.Helper()
	replies, err := f.eng.Handle(context.Background(), input(userID, userID, s))
	if err != nil {
		f.t.Fatalf("Handle(%q): %v", s, err)
	}
	return replies
}

func (f *fixture) send(inputs ...string) []Reply {
	f.t.Helper()
	var last []Reply
	for _, s := range inputs {
		last = f.sendAs(me, s)
	}
	return last
}

func (f *fixture) step() Step {
	f.t.Helper()
	snap, ok := f.eng.Session(me, me)
	if !ok {
		return StepIdle
	}
	return snap.Step
}

// seed stores a reminder owned by owner, scheduled from the fixture clock.
func (f *fixture) seed(owner int64, r domain.Reminder) domain.Reminder {
	f.t.Helper()
	r.ID = f.st.NewID()
	r.OwnerChatID, r.OwnerUserID = owner, owner
	if r.TargetChatID == 0 {
		r.TargetChatID = owner
	}
	if len(r.Messages) == 0 {
		r.Messages = []domain.MessagePart{domain.TextPart("water the plants")}
	}
	if r.Status == "" {
		r.Status = domain.StatusActive
		f.calc.Schedule(&r, f.clk.Now())
	}
	if err := f.st.Upsert(context.Background(), r); err != nil {
		f.t.Fatalf("seed: %v", err)
	}
	return r
}

func (f *fixture) only() domain.Reminder {
	f.t.Helper()
	all := f.st.Load()
	if len(all) != 1 {
		f.t.Fatalf("store holds %d reminders, want 1", len(all))
	}
	return all[0]
}

func wantText(t *testing.T, replies []Reply, substr string) {
	t.Helper()
	for _, r := range replies {
		if strings.Contains(r.Text, substr) {
			return
		}
	}
	t.Fatalf("no reply contains %q; got %+v", substr, replies)
}

// ---- create ----

func TestCreate_WeeklyWithEndDate(t *testing.T) {
	f := newFixture(t)

	r := f.send("/newreminder")
	if len(r) != 1 || len(r[0].Options) != 2 || r[0].Options[0][0] != labelDaily {
		t.Fatalf("frequency prompt = %+v", r)
	}
	f.send("Weekly", "09:00")
	if f.step() != StepDays {
		t.Fatalf("step=%v want days", f.step())
	}
	f.send("tue", "Take medicine", "Drink water")
	wantText(t, f.send("/done"), "Attach")
	f.send("No attachment")
	if f.step() != StepEndDate {
		t.Fatalf("step=%v want end_date", f.step())
	}
	f.send("2026-11-02")
	wantText(t, f.send("To Me"), "Reminder created")

	got := f.only()
	if got.Frequency.Kind != domain.FrequencyWeekly || *got.Frequency.Weekday != time.Tuesday {
		t.Fatalf("frequency = %v", got.Frequency)
	}
	if got.TimeOfDay != (domain.TimeOfDay{Hour: 9}) {
		t.Fatalf("time = %v", got.TimeOfDay)
	}
	if got.EndDate == nil || *got.EndDate != (domain.Date{Year: 2026, Month: time.November, Day: 2}) {
		t.Fatalf("end date = %v", got.EndDate)
	}
	if len(got.Messages) != 2 || got.Messages[0].Text != "Take medicine" || got.Messages[1].Text != "Drink water" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.TargetChatID != me || got.OwnerUserID != me || !got.RequestConfirmation || !got.Active() {
		t.Fatalf("reminder = %+v", got)
	}
	if got.NextFireAt == nil || !got.NextFireAt.Equal(at(2026, time.October, 20, 9, 0)) {
		t.Fatalf("next = %v", got.NextFireAt)
	}
	if f.eng.Active() != 0 {
		t.Fatal("session survived commit")
	}
}

func TestCreate_OneTimeSkipsDaysAndEndDate(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder", "one time", "11:00", "Call mom", "/done")

	replies, err := f.eng.Handle(context.Background(), Attachment(me, me, domain.MessagePart{Kind: domain.PartPhoto, FileID: "AgAD"}))
	if err != nil {
		t.Fatalf("attachment: %v", err)
	}
	wantText(t, replies, "Photo attached")
	if f.step() != StepDestination {
		t.Fatalf("step=%v want destination", f.step())
	}
	f.send("Specific Chat ID", "-100555")

	got := f.only()
	if got.Frequency.Kind != domain.FrequencyOneTime || *got.Frequency.Date != (domain.Date{Year: 2026, Month: time.October, Day: 19}) {
		t.Fatalf("frequency = %+v", got.Frequency)
	}
	if got.EndDate != nil || got.TargetChatID != -100555 {
		t.Fatalf("reminder = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Kind != domain.PartPhoto {
		t.Fatalf("attachment not last: %+v", got.Messages)
	}
	if !got.NextFireAt.Equal(at(2026, time.October, 19, 11, 0)) {
		t.Fatalf("next = %v", got.NextFireAt)
	}
}

func TestCreate_CustomDaysToUsernameAndGroup(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder", "Custom Days", "08:15", "1,3", "stretch", "/done", "No attachment", "No end date", "To Username", "@Bob")
	got := f.only()
	if got.TargetChatID != other || got.Frequency.String() != "Custom (Mon, Wed)" {
		t.Fatalf("reminder = %+v", got)
	}

	f.send("/newreminder", "Daily", "07:00", "standup", "/done", "skip", "none", "To Group")
	if n := f.st.Len(); n != 2 {
		t.Fatalf("store len = %d", n)
	}
	groupReminders := f.st.List(func(r domain.Reminder) bool { return r.TargetChatID == group })
	if len(groupReminders) != 1 {
		t.Fatalf("group reminders = %d", len(groupReminders))
	}
}

// ---- cancellation ----

func TestCancel_AtEveryStepLeavesStoreUntouched(t *testing.T) {
	paths := [][]string{
		{"/newreminder", "Weekly", "09:00", "Tue", "Take medicine", "/done", "No attachment", "2026-11-02", "To Username"},
		{"/newreminder", "Custom Days", "08:15", "Mon,Wed", "x", "/done", "No attachment", "No end date", "Specific Chat ID"},
		{"/newreminder", "One-time", "2026-10-25 08:00", "x", "/done", "No attachment"},
	}
	for _, path := range paths {
		for n := 1; n <= len(path); n++ {
			f := newFixture(t)
			f.send(path[:n]...)
			if f.step() == StepIdle {
				t.Fatalf("%v: no session after %d inputs", path, n)
			}
			wantText(t, f.send("/cancel"), "cancelled")
			if f.st.Len() != 0 {
				t.Fatalf("%v: cancel after %d inputs stored a reminder", path, n)
			}
			if f.eng.Active() != 0 {
				t.Fatalf("%v: session left after cancel", path)
			}
			// Cancelling again is harmless.
			wantText(t, f.send("/cancel"), "cancelled")
		}
	}
}

func TestCancel_EditLeavesReminderUnchanged(t *testing.T) {
	f := newFixture(t)
	orig := f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}})
	f.send("/editreminder", orig.ID, "Time", "/cancel")
	got := f.only()
	if got.TimeOfDay != orig.TimeOfDay || !got.NextFireAt.Equal(*orig.NextFireAt) {
		t.Fatalf("edit cancelled but reminder changed: %+v", got)
	}
}

// ---- validation ----

func TestValidation_RepromptsSameStep(t *testing.T) {
	f := newFixture(t)
	f.dir.group = 0

	cases := []struct {
		setup []string
		bad   string
		field string
		step  Step
	}{
		{[]string{"/newreminder"}, "Hourly Range", "frequency", StepFrequency},
		{[]string{"Weekly"}, "25:00", "time", StepTime},
		{[]string{"09:00"}, "Funday", "days", StepDays},
		{nil, "Tue,Wed", "day", StepDays},
		{[]string{"Tue"}, "/done", "messages", StepMessages},
		{[]string{"hello", "/done"}, "maybe", "attachment", StepAttachment},
		{[]string{"No attachment"}, "2026-10-19", "end date", StepEndDate},
		{nil, "2026-13-01", "end date", StepEndDate},
		{[]string{"No end date"}, "To Group", "destination", StepDestination},
		{nil, "Somewhere", "destination", StepDestination},
		{[]string{"To Username"}, "@ghost", "username", StepUsername},
	}
	for _, c := range cases {
		f.send(c.setup...)
		replies := f.send(c.bad)
		if len(replies) != 1 || !strings.HasPrefix(replies[0].Text, "❌ Invalid "+c.field) {
			t.Fatalf("%q: replies = %+v", c.bad, replies)
		}
		if f.step() != c.step {
			t.Fatalf("%q: step=%v want %v", c.bad, f.step(), c.step)
		}
	}
	if f.st.Len() != 0 {
		t.Fatal("invalid input stored a reminder")
	}
}

func TestValidation_MessageLengthLimit(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder", "Daily", "09:00")

	wantText(t, f.send(strings.Repeat("я", maxTextRunes)), "Message #1 added")
	replies := f.send(strings.Repeat("я", maxTextRunes+1))
	if len(replies) != 1 || !strings.HasPrefix(replies[0].Text, "❌ Invalid message") {
		t.Fatalf("replies = %+v", replies)
	}
	if f.step() != StepMessages {
		t.Fatalf("step = %v", f.step())
	}
}

func TestValidation_ToMeNeedsPrivateChat(t *testing.T) {
	f := newFixture(t)
	const stranger, grp int64 = 5, -100555
	steps := []string{"/newreminder", "Daily", "09:00", "x", "/done", "No attachment", "No end date", "To Me"}
	var replies []Reply
	for _, s := range steps {
		var err error
		replies, err = f.eng.Handle(context.Background(), input(grp, stranger, s))
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
	}
	wantText(t, replies, "❌ Invalid destination")
	if f.st.Len() != 0 {
		t.Fatal("unreachable destination was stored")
	}
}

func TestValidation_AttachmentOutsideAttachmentStep(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder", "Daily", "09:00")
	replies, err := f.eng.Handle(context.Background(), Attachment(me, me, domain.MessagePart{Kind: domain.PartDocument, FileID: "doc"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	wantText(t, replies, "❌ Invalid input")
	if f.step() != StepMessages {
		t.Fatalf("step=%v", f.step())
	}
}

// ---- edit ----

func TestEdit_TimeRecomputesNextFire(t *testing.T) {
	f := newFixture(t)
	r := f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}})

	wantText(t, f.send("/editreminder"), r.ID)
	f.send(r.ID)
	if f.step() != StepEditField {
		t.Fatalf("step=%v", f.step())
	}
	f.send("Time")
	wantText(t, f.send("10:30"), "updated")

	got := f.only()
	if got.ID != r.ID || got.TimeOfDay != (domain.TimeOfDay{Hour: 10, Minute: 30}) {
		t.Fatalf("reminder = %+v", got)
	}
	if !got.NextFireAt.Equal(at(2026, time.October, 19, 10, 30)) {
		t.Fatalf("next = %v", got.NextFireAt)
	}
}

func TestEdit_EndDateReactivatesExpired(t *testing.T) {
	f := newFixture(t)
	end := domain.Date{Year: 2026, Month: time.October, Day: 13}
	r := f.seed(me, domain.Reminder{
		Frequency: domain.Weekly(time.Tuesday),
		TimeOfDay: domain.TimeOfDay{Hour: 9},
		EndDate:   &end,
		Status:    domain.StatusExpired,
	})

	f.send("/editreminder "+r.ID, "End Date", "none")
	got := f.only()
	if !got.Active() || got.EndDate != nil {
		t.Fatalf("reminder = %+v", got)
	}
	if got.NextFireAt == nil || !got.NextFireAt.Equal(at(2026, time.October, 20, 9, 0)) {
		t.Fatalf("next = %v", got.NextFireAt)
	}
}

func TestEdit_FrequencyToWeekly(t *testing.T) {
	f := newFixture(t)
	r := f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}})
	f.send("/editreminder "+r.ID, "Frequency", "Weekly", "Fri")
	got := f.only()
	if got.Frequency.Kind != domain.FrequencyWeekly || *got.Frequency.Weekday != time.Friday {
		t.Fatalf("frequency = %+v", got.Frequency)
	}
	if !got.NextFireAt.Equal(at(2026, time.October, 23, 9, 0)) {
		t.Fatalf("next = %v", got.NextFireAt)
	}
}

func TestEdit_MessagesKeepAttachment(t *testing.T) {
	f := newFixture(t)
	r := f.seed(me, domain.Reminder{
		Frequency: domain.Daily(),
		TimeOfDay: domain.TimeOfDay{Hour: 9},
		Messages: []domain.MessagePart{
			domain.TextPart("old"),
			{Kind: domain.PartPhoto, FileID: "pic"},
		},
	})
	f.send("/editreminder "+r.ID, "Messages", "new one", "new two", "/done")
	got := f.only()
	if len(got.Messages) != 3 || got.Messages[0].Text != "new one" || got.Messages[1].Text != "new two" || got.Messages[2].FileID != "pic" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !got.NextFireAt.Equal(*r.NextFireAt) {
		t.Fatal("message edit moved the schedule")
	}
}

func TestEdit_OtherUsersReminder(t *testing.T) {
	f := newFixture(t)
	mine := f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}})

	wantText(t, f.sendAs(other, "/editreminder"), "No reminders to edit")
	f.seed(other, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 8}})
	wantText(t, f.sendAs(other, "/editreminder "+mine.ID), "not found")
	if _, ok := f.eng.Session(other, other); ok {
		t.Fatal("session left after failed pick")
	}
}

func TestEdit_ReminderDeletedMidEdit(t *testing.T) {
	f := newFixture(t)
	r := f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}})
	f.send("/editreminder "+r.ID, "Time")
	if err := f.st.Delete(context.Background(), r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	wantText(t, f.send("10:00"), "not found")
	if f.st.Len() != 0 {
		t.Fatal("edit resurrected a deleted reminder")
	}
}

// ---- delete / list ----

func TestDelete_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	mine := f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}})

	wantText(t, f.sendAs(other, "/deletereminder "+mine.ID), "not found")
	if f.st.Len() != 1 {
		t.Fatal("another user deleted my reminder")
	}

	wantText(t, f.send("/deletereminder"), mine.ID)
	wantText(t, f.send(mine.ID), "deleted")
	if f.st.Len() != 0 {
		t.Fatal("reminder still stored")
	}
	if len(f.forget.ids) != 1 || f.forget.ids[0] != mine.ID {
		t.Fatalf("forgotten = %v", f.forget.ids)
	}
	wantText(t, f.send("/deletereminder"), "No reminders to delete")
}

func TestList_OnlyOwnActive(t *testing.T) {
	f := newFixture(t)
	wantText(t, f.send("/listreminders"), "No active reminders")

	end := domain.Date{Year: 2026, Month: time.October, Day: 1}
	f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 18}, Messages: []domain.MessagePart{domain.TextPart("evening pills")}})
	f.seed(me, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 9}, EndDate: &end, Status: domain.StatusExpired})
	f.seed(other, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 7}, Messages: []domain.MessagePart{domain.TextPart("not yours")}})

	replies := f.send("/listreminders")
	wantText(t, replies, "evening pills")
	if strings.Contains(replies[0].Text, "not yours") || strings.Count(replies[0].Text, "🆔") != 1 {
		t.Fatalf("listing = %q", replies[0].Text)
	}
}

// ---- session lifecycle ----

func TestTimeout_DiscardsSession(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder", "Daily")
	f.clk.Advance(16 * time.Minute)

	wantText(t, f.send("09:00"), "timed out")
	if f.eng.Active() != 0 || f.st.Len() != 0 {
		t.Fatal("timed out session left state behind")
	}
	if _, err := f.eng.Handle(context.Background(), Text(me, me, "09:00")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err=%v want ErrNoSession", err)
	}
}

func TestSweep_RemovesIdleSessions(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder")
	f.sendAs(other, "/newreminder")
	f.clk.Advance(10 * time.Minute)
	f.sendAs(other, "Daily")
	f.clk.Advance(6 * time.Minute)

	if n := f.eng.Sweep(f.clk.Now()); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := f.eng.Session(other, other); !ok {
		t.Fatal("recently active session was swept")
	}
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.eng.RunJanitor(ctx, time.Millisecond)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestNewReminder_RestartsSession(t *testing.T) {
	f := newFixture(t)
	f.send("/newreminder", "Daily", "09:00")
	f.send("/newreminder")
	if f.step() != StepFrequency || f.eng.Active() != 1 {
		t.Fatalf("step=%v active=%d", f.step(), f.eng.Active())
	}
}

func TestHandle_StrayInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.eng.Handle(context.Background(), Text(me, me, "hello")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("text err=%v", err)
	}
	if _, err := f.eng.Handle(context.Background(), Command(me, me, "/done")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("done err=%v", err)
	}
	if _, err := f.eng.Handle(context.Background(), Command(me, me, "/start")); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("start err=%v", err)
	}
}

func TestSessions_IndependentPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Two users in the same group chat.
	for _, s := range []string{"/newreminder", "Daily"} {
		if _, err := f.eng.Handle(ctx, input(group, me, s)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.eng.Handle(ctx, input(group, other, "/newreminder")); err != nil {
		t.Fatal(err)
	}
	a, _ := f.eng.Session(group, me)
	b, _ := f.eng.Session(group, other)
	if a.Step != StepTime || b.Step != StepFrequency {
		t.Fatalf("steps = %v, %v", a.Step, b.Step)
	}
}

// ---- failures ----

func TestPersistenceError_PropagatesAndEndsSession(t *testing.T) {
	f := newFixture(t)
	lg := zerolog.Nop()
	f.eng = New(failingStore{f.st}, f.dir, nil, f.calc, Config{Now: f.clk.Now, Logger: &lg})

	f.send("/newreminder", "Daily", "09:00", "x", "/done", "No attachment", "No end date")
	_, err := f.eng.Handle(context.Background(), Text(me, me, "To Me"))
	if !errors.Is(err, store.ErrPersistence) {
		t.Fatalf("err=%v want ErrPersistence", err)
	}
	if f.eng.Active() != 0 || f.st.Len() != 0 {
		t.Fatal("failed commit left state behind")
	}
}

func TestCreate_RetriesClaimedID(t *testing.T) {
	f := newFixture(t)
	taken := f.seed(other, domain.Reminder{Frequency: domain.Daily(), TimeOfDay: domain.TimeOfDay{Hour: 8}})
	lg := zerolog.Nop()
	f.eng = New(&racingStore{FileStore: f.st, claimed: []string{taken.ID}}, f.dir, nil, f.calc, Config{Now: f.clk.Now, Logger: &lg})

	wantText(t, f.send("/newreminder", "Daily", "09:00", "x", "/done", "No attachment", "No end date", "To Me"), "Reminder created")

	if f.st.Len() != 2 {
		t.Fatalf("store holds %d reminders, want 2", f.st.Len())
	}
	kept, err := f.st.Get(taken.ID)
	if err != nil || kept.OwnerUserID != other || kept.Messages[0].Text != "water the plants" {
		t.Fatalf("claimed reminder overwritten: %+v err=%v", kept, err)
	}
	mine := f.eng.owned(me, false)
	if len(mine) != 1 || mine[0].ID == taken.ID {
		t.Fatalf("new reminder = %+v", mine)
	}
}
