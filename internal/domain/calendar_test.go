package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	ok := map[string]TimeOfDay{
		"09:00":   {9, 0},
		"9:05":    {9, 5},
		" 23:59 ": {23, 59},
		"00:00":   {0, 0},
	}
	for in, want := range ok {
		got, err := ParseTimeOfDay(in)
		if err != nil || got != want {
			t.Errorf("ParseTimeOfDay(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "24:00", "12:60", "12", "12:5", "ab:cd", "123:00", "-1:00"} {
		if _, err := ParseTimeOfDay(in); !errors.Is(err, ErrInvalidTimeOfDay) {
			t.Errorf("ParseTimeOfDay(%q) err = %v; want ErrInvalidTimeOfDay", in, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-11-02")
	if err != nil || d != (Date{2026, time.November, 2}) {
		t.Fatalf("ParseDate = %v, %v", d, err)
	}
	for _, in := range []string{"2026-02-30", "02.11.2026", "", "2026-1-2"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) err = %v", in, err)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{2026, time.December, 30}
	if got := d.AddDays(3); got != (Date{2027, time.January, 2}) {
		t.Fatalf("AddDays across year = %v", got)
	}
	if d.Weekday() != time.Wednesday {
		t.Fatalf("Weekday = %v", d.Weekday())
	}
	if !d.Before(d.AddDays(1)) || !d.AddDays(1).After(d) || d.Compare(d) != 0 {
		t.Fatalf("ordering broken")
	}

	loc := time.FixedZone("UTC+4", 4*3600)
	at := d.At(TimeOfDay{9, 30}, loc)
	if at.UTC() != time.Date(2026, 12, 30, 5, 30, 0, 0, time.UTC) {
		t.Fatalf("At = %v", at.UTC())
	}
	if DateOf(at) != d {
		t.Fatalf("DateOf(At) = %v", DateOf(at))
	}
}

func TestCalendarJSON(t *testing.T) {
	type wrap struct {
		T TimeOfDay `json:"t"`
		D *Date     `json:"d"`
	}
	in := wrap{T: TimeOfDay{7, 5}, D: &Date{2026, time.March, 1}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"t":"07:05","d":"2026-03-01"}` {
		t.Fatalf("json = %s", b)
	}
	var out wrap
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip = %+v", out)
	}
	if err := json.Unmarshal([]byte(`{"t":"25:00"}`), &out); err == nil {
		t.Fatalf("expected error for bad time")
	}
}

func TestFrequencyHelpers(t *testing.T) {
	cd := CustomDays(time.Wednesday, time.Monday, time.Wednesday, time.Sunday)
	if want := []time.Weekday{time.Monday, time.Wednesday, time.Sunday}; !reflect.DeepEqual(cd.Days, want) {
		t.Fatalf("CustomDays normalized = %v; want %v", cd.Days, want)
	}
	if cd.String() != "Custom (Mon, Wed, Sun)" {
		t.Fatalf("String = %q", cd.String())
	}
	if !cd.Matches(time.Sunday) || cd.Matches(time.Tuesday) {
		t.Fatalf("Matches wrong")
	}
	if Weekly(time.Friday).String() != "Weekly (Fri)" || Daily().String() != "Daily" {
		t.Fatalf("String of weekly/daily wrong")
	}
	one := OneTime(Date{2026, time.October, 20})
	if one.Recurring() || one.Matches(time.Tuesday) {
		t.Fatalf("one-time must not recur or match weekdays")
	}
	if one.String() != "One-time (2026-10-20)" {
		t.Fatalf("String = %q", one.String())
	}
}
