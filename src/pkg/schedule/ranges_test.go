package schedule

import (
	"testing"
	"time"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("unable to load location %s: %v", name, err)
	}
	return loc
}

func TestRanges_Pairing(t *testing.T) {
	p := NewParser("et")
	s := p.Parse("off=[(m-f,21),(u,18,30)];on=[(m-f,6,30),(u,10)];tz=pt")
	if s == nil {
		t.Fatalf("expected schedule, got nil")
	}

	view := Ranges(s)
	if len(view) != 6 {
		t.Fatalf("expected 6 weekdays, got %d", len(view))
	}

	for day := 0; day < 5; day++ {
		ranges := view[day]
		if len(ranges) != 1 {
			t.Fatalf("day %d: expected 1 range, got %d", day, len(ranges))
		}
		if *ranges[0].Start != NewTimeOfDay(6, 30) {
			t.Fatalf("day %d: unexpected start %v", day, *ranges[0].Start)
		}
		if *ranges[0].End != NewTimeOfDay(21, 0) {
			t.Fatalf("day %d: unexpected end %v", day, *ranges[0].End)
		}
	}

	sunday := view[6]
	if len(sunday) != 1 {
		t.Fatalf("sunday: expected 1 range, got %d", len(sunday))
	}
	if *sunday[0].Start != NewTimeOfDay(10, 0) || *sunday[0].End != NewTimeOfDay(18, 30) {
		t.Fatalf("sunday: unexpected range %v-%v", *sunday[0].Start, *sunday[0].End)
	}
}

func TestRanges_OffBeforeOn(t *testing.T) {
	// An off toggle with no on toggle produces an end-only entry which
	// never matches.
	s := &Schedule{
		Off: []Toggle{{Days: []int{0}, Hour: 19, Minute: 0}},
		TZ:  "et",
	}

	view := Ranges(s)
	if len(view[0]) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(view[0]))
	}
	if view[0][0].Start != nil {
		t.Fatal("expected nil start on degenerate entry")
	}

	// Monday 2023-03-13 10:00, inside 0:00-19:00 were the entry a real range
	now := time.Date(2023, 3, 13, 10, 0, 0, 0, mustLocation(t, "America/New_York"))
	if MatchRange(now, view) {
		t.Fatal("degenerate entry must not match")
	}
}

func TestMatchRange_MidnightCrossing(t *testing.T) {
	// Up overnight: on at 22:00, off at 6:00, every day
	p := NewParser("et")
	s := p.Parse("on=(m-u,22);off=(m-u,6)")
	if s == nil {
		t.Fatalf("expected schedule, got nil")
	}
	view := Ranges(s)

	loc := mustLocation(t, "America/New_York")
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{23, 30, true},
		{5, 0, true},
		{12, 0, false},
		{22, 0, true},
		{6, 0, false},
	}

	for _, c := range cases {
		now := time.Date(2023, 3, 15, c.hour, c.minute, 0, 0, loc)
		if got := MatchRange(now, view); got != c.want {
			t.Fatalf("%02d:%02d: got %v, want %v", c.hour, c.minute, got, c.want)
		}
	}
}

func TestMatchRange_WeekdayNumbering(t *testing.T) {
	// Monday-only window
	p := NewParser("et")
	s := p.Parse("on=(m,7);off=(m,19)")
	if s == nil {
		t.Fatalf("expected schedule, got nil")
	}
	view := Ranges(s)

	loc := mustLocation(t, "America/New_York")

	// 2023-03-13 is a Monday
	monday := time.Date(2023, 3, 13, 12, 0, 0, 0, loc)
	if !MatchRange(monday, view) {
		t.Fatal("expected match on Monday")
	}

	// 2023-03-12 is a Sunday
	sunday := time.Date(2023, 3, 12, 12, 0, 0, 0, loc)
	if MatchRange(sunday, view) {
		t.Fatal("expected no match on Sunday")
	}
}

func TestTimeOfDayString(t *testing.T) {
	if got := NewTimeOfDay(6, 5).String(); got != "06:05" {
		t.Fatalf("expected 06:05, got %s", got)
	}
}
