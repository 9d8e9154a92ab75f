package schedule

import (
	"fmt"
	"log/slog"
	"time"
)

// TimeOfDay is a minute-aligned moment within a day, stored as minutes after
// midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Range is an in-window interval within one weekday. Start or End may be nil
// when the schedule's toggles were unbalanced; such ranges never match.
type Range struct {
	Start *TimeOfDay
	End   *TimeOfDay
}

// RangeView maps weekday (Monday=0) to the in-window intervals of that day.
type RangeView map[int][]*Range

// Ranges converts the on/off toggle-based schedule to the more flexible
// range-based view. On toggles open an interval; off toggles close every
// interval already present on the day. An off toggle on a day with no open
// interval appends an end-only entry, which membership treats as degenerate.
func Ranges(s *Schedule) RangeView {
	view := make(RangeView)

	for _, t := range s.On {
		start := NewTimeOfDay(t.Hour, t.Minute)
		for _, day := range t.Days {
			view[day] = append(view[day], &Range{Start: &start})
		}
	}

	for _, t := range s.Off {
		end := NewTimeOfDay(t.Hour, t.Minute)
		for _, day := range t.Days {
			if len(view[day]) == 0 {
				slog.Default().Debug("off toggle with no matching on toggle",
					slog.Int("day", day),
					slog.String("time", end.String()))
				view[day] = append(view[day], &Range{End: &end})
				continue
			}
			for _, r := range view[day] {
				r.End = &end
			}
		}
	}

	return view
}

// timeInPeriod reports whether qry falls within [start, end), treating
// start > end as an interval that crosses midnight.
func timeInPeriod(start, end, qry TimeOfDay) bool {
	if start < end {
		return start <= qry && qry < end
	}
	// Crosses midnight
	return qry >= start || qry < end
}

// MatchRange reports whether now falls inside any interval of its weekday.
func MatchRange(now time.Time, view RangeView) bool {
	ranges, ok := view[civilWeekday(now)]
	if !ok {
		return false
	}

	qry := NewTimeOfDay(now.Hour(), now.Minute())
	for _, r := range ranges {
		if r.Start == nil || r.End == nil {
			continue
		}
		if timeInPeriod(*r.Start, *r.End, qry) {
			return true
		}
	}
	return false
}

// civilWeekday converts Go's Sunday=0 weekday to the Monday=0 numbering the
// grammar uses.
func civilWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
