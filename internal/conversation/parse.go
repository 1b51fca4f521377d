package conversation

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

var fold = cases.Fold()

// key folds s for choice matching: case-insensitive, with everything but
// letters and digits dropped, so "One-time", "one time" and "ONETIME" agree.
func key(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, fold.String(s))
}

// Labels shown on the wizard keyboards.
const (
	labelDaily   = "Daily"
	labelOneTime = "One-time"
	labelWeekly  = "Weekly"
	labelCustom  = "Custom Days"

	labelNoAttachment = "No attachment"
	labelNoEndDate    = "No end date"

	labelToMe       = "To Me"
	labelToGroup    = "To Group"
	labelToUsername = "To Username"
	labelToChatID   = "Specific Chat ID"

	labelFieldTime        = "Time"
	labelFieldFrequency   = "Frequency"
	labelFieldMessages    = "Messages"
	labelFieldEndDate     = "End Date"
	labelFieldDestination = "Destination"
)

var frequencyChoices = map[string]domain.FrequencyKind{
	key(labelDaily):   domain.FrequencyDaily,
	key(labelOneTime): domain.FrequencyOneTime,
	"once":            domain.FrequencyOneTime,
	key(labelWeekly):  domain.FrequencyWeekly,
	key(labelCustom):  domain.FrequencyCustomDays,
	"custom":          domain.FrequencyCustomDays,
}

func parseFrequencyKind(s string) (domain.FrequencyKind, error) {
	if k, ok := frequencyChoices[key(s)]; ok {
		return k, nil
	}
	return "", invalid("frequency", "one of Daily, One-time, Weekly or Custom Days")
}

var weekdayNames = func() map[string]time.Weekday {
	m := make(map[string]time.Weekday, 21)
	for i, wd := range domain.WeekdaysMondayFirst() {
		m[key(wd.String())] = wd
		m[key(domain.ShortWeekday(wd))] = wd
		m[strconv.Itoa(i+1)] = wd
	}
	return m
}()

// parseWeekdays reads a comma or space separated list such as "Mon, Wed",
// "monday friday" or "1,3,5" (1 = Monday). Duplicates collapse.
func parseWeekdays(s string) ([]time.Weekday, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	var out []time.Weekday
	for _, f := range fields {
		wd, ok := weekdayNames[key(f)]
		if !ok {
			return nil, invalid("days", "weekday names like Mon,Wed,Fri or numbers 1-7 (1 = Monday)")
		}
		out = append(out, wd)
	}
	if len(out) == 0 {
		return nil, invalid("days", "at least one weekday, e.g. Mon,Wed,Fri")
	}
	return domain.CustomDays(out...).Days, nil
}

// parseOneTime reads "HH:MM" (today if still ahead of now, otherwise
// tomorrow) or "YYYY-MM-DD HH:MM", which must lie in the future.
func parseOneTime(s string, now time.Time) (domain.Date, domain.TimeOfDay, error) {
	s = strings.TrimSpace(s)
	expected := "HH:MM or YYYY-MM-DD HH:MM in the future"
	if ds, ts, ok := strings.Cut(s, " "); ok {
		d, err := domain.ParseDate(ds)
		if err != nil {
			return domain.Date{}, domain.TimeOfDay{}, invalid("time", expected)
		}
		tod, err := domain.ParseTimeOfDay(ts)
		if err != nil {
			return domain.Date{}, domain.TimeOfDay{}, invalid("time", expected)
		}
		if !d.At(tod, now.Location()).After(now) {
			return domain.Date{}, domain.TimeOfDay{}, invalid("time", expected)
		}
		return d, tod, nil
	}
	tod, err := domain.ParseTimeOfDay(s)
	if err != nil {
		return domain.Date{}, domain.TimeOfDay{}, invalid("time", expected)
	}
	today := domain.DateOf(now)
	if today.At(tod, now.Location()).After(now) {
		return today, tod, nil
	}
	return today.AddDays(1), tod, nil
}

func parseTimeOfDay(s string) (domain.TimeOfDay, error) {
	tod, err := domain.ParseTimeOfDay(s)
	if err != nil {
		return domain.TimeOfDay{}, invalid("time", "HH:MM, e.g. 09:30")
	}
	return tod, nil
}

// parseEndDate returns nil for "No end date" (or "none"/"skip") and
// otherwise a date strictly after today.
func parseEndDate(s string, now time.Time) (*domain.Date, error) {
	switch key(s) {
	case key(labelNoEndDate), "none", "skip", "no":
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, invalid("end date", "YYYY-MM-DD or "+labelNoEndDate)
	}
	if !d.After(domain.DateOf(now)) {
		return nil, invalid("end date", "a date after today")
	}
	return &d, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid("chat id", "a numeric chat id such as -1001234567890")
	}
	return id, nil
}
