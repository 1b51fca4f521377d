package conversation

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

func TestParseWeekdays(t *testing.T) {
	cases := []struct {
		in   string
		want []time.Weekday
	}{
		{"Mon,Wed,Fri", []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"1,3,5", []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"sunday monday", []time.Weekday{time.Monday, time.Sunday}},
		{" TUE ; tue , 2 ", []time.Weekday{time.Tuesday}},
		{"7", []time.Weekday{time.Sunday}},
	}
	for _, c := range cases {
		got, err := parseWeekdays(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("%q: got %v want %v", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", " , ", "Mon,Funday", "8", "0"} {
		_, err := parseWeekdays(bad)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "days" {
			t.Fatalf("%q: err=%v want days ValidationError", bad, err)
		}
	}
}

func TestParseOneTime(t *testing.T) {
	now := at(2026, time.October, 19, 10, 0)
	today := domain.Date{Year: 2026, Month: time.October, Day: 19}

	d, tod, err := parseOneTime("11:00", now)
	if err != nil || d != today || tod != (domain.TimeOfDay{Hour: 11}) {
		t.Fatalf("later today: %v %v %v", d, tod, err)
	}
	d, _, err = parseOneTime("09:00", now)
	if err != nil || d != today.AddDays(1) {
		t.Fatalf("already passed: %v %v", d, err)
	}
	d, _, err = parseOneTime("10:00", now)
	if err != nil || d != today.AddDays(1) {
		t.Fatalf("exactly now: %v %v", d, err)
	}
	d, tod, err = parseOneTime("2026-12-31 23:59", now)
	if err != nil || d != (domain.Date{Year: 2026, Month: time.December, Day: 31}) || tod != (domain.TimeOfDay{Hour: 23, Minute: 59}) {
		t.Fatalf("explicit date: %v %v %v", d, tod, err)
	}

	for _, bad := range []string{"2026-10-18 09:00", "2026-10-19 09:59", "tomorrow", "2026-02-30 09:00", "24:00"} {
		if _, _, err := parseOneTime(bad, now); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestParseEndDate(t *testing.T) {
	now := at(2026, time.October, 19, 23, 30)

	for _, skip := range []string{"No end date", "none", "SKIP"} {
		d, err := parseEndDate(skip, now)
		if err != nil || d != nil {
			t.Fatalf("%q: %v %v", skip, d, err)
		}
	}
	d, err := parseEndDate("2026-10-20", now)
	if err != nil || d == nil || *d != (domain.Date{Year: 2026, Month: time.October, Day: 20}) {
		t.Fatalf("tomorrow: %v %v", d, err)
	}
	if _, err := parseEndDate("2026-10-19", now); err == nil {
		t.Fatal("today accepted")
	}
	if _, err := parseEndDate("20.10.2026", now); err == nil {
		t.Fatal("bad format accepted")
	}
}

func TestParseFrequencyKind(t *testing.T) {
	cases := map[string]domain.FrequencyKind{
		"Daily":       domain.FrequencyDaily,
		"one-time":    domain.FrequencyOneTime,
		"ONE TIME":    domain.FrequencyOneTime,
		"weekly":      domain.FrequencyWeekly,
		"Custom Days": domain.FrequencyCustomDays,
		"custom":      domain.FrequencyCustomDays,
	}
	for in, want := range cases {
		got, err := parseFrequencyKind(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v, %v", in, got, err)
		}
	}
	if _, err := parseFrequencyKind("Hourly Range"); err == nil {
		t.Fatal("hourly range accepted")
	}
}

func TestCommand_StripsBotNameAndArgs(t *testing.T) {
	ev := Command(1, 2, "/DeleteReminder@ReminderBot   ab12cd34 ")
	if ev.Kind != EventCommand || ev.Command != "deletereminder" || ev.Args != "ab12cd34" {
		t.Fatalf("event = %+v", ev)
	}
	if ev := Command(1, 2, "/cancel"); ev.Command != "cancel" || ev.Args != "" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := invalid("time", "HH:MM")
	if err.Error() != "invalid time: expected HH:MM" {
		t.Fatalf("got %q", err.Error())
	}
}

func TestStepString(t *testing.T) {
	if StepEndDate.String() != "end_date" || Step(99).String() != "unknown" {
		t.Fatal("unexpected step names")
	}
}
