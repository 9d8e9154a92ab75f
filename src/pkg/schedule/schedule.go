// Package schedule implements the tag-value schedule grammar used to attach
// on/off hours to cloud resources, and the range-based view used to answer
// membership queries against it.
//
// Schedule format:
//
//	# up mon-fri from 7am-6:30pm; eastern time
//	off=(m-f,18,30);on=(m-f,7)
//	# up mon-fri from 6:30am-9pm; up sun from 10am-6:30pm; pacific time
//	off=[(m-f,21),(u,18,30)];on=[(m-f,6,30),(u,10)];tz=pt
//
// Days are m, t, w, h, f, s, u for Monday through Sunday and may be given as
// a range (m-f), including wrap-around ranges (f-m). Hours are 0-23, minutes
// 0-59. The tag value is persisted on cloud resources and is an external wire
// format; it must parse identically everywhere.
package schedule

import (
	"fmt"
	"strings"
)

// Schedule keys recognized in tag values.
const (
	KeyOn  string = "on"
	KeyOff string = "off"
	KeyTZ  string = "tz"
)

// Weekday numbering is Monday=0 through Sunday=6.
var dayMap = map[string]int{
	"m": 0,
	"t": 1,
	"w": 2,
	"h": 3,
	"f": 4,
	"s": 5,
	"u": 6,
}

var dayNames = [7]string{"m", "t", "w", "h", "f", "s", "u"}

// Toggle marks a moment at which the on/off state changes: at Hour:Minute
// local time on each day in Days.
type Toggle struct {
	Days   []int
	Hour   int
	Minute int
}

// Schedule is the canonical parsed form of a tag value. TZ is always set
// after a successful parse, filled from the parser default when the tag
// omits it. Schedules are immutable after parse.
type Schedule struct {
	On  []Toggle
	Off []Toggle
	TZ  string
}

// String renders the schedule back into the tag grammar. Re-parsing the
// result yields an equal schedule.
func (s *Schedule) String() string {
	parts := make([]string, 0, 3)
	if len(s.Off) > 0 {
		parts = append(parts, KeyOff+"="+formatToggles(s.Off))
	}
	if len(s.On) > 0 {
		parts = append(parts, KeyOn+"="+formatToggles(s.On))
	}
	parts = append(parts, KeyTZ+"="+s.TZ)
	return strings.Join(parts, ";")
}

func formatToggles(toggles []Toggle) string {
	groups := make([]string, 0, len(toggles))
	for _, t := range toggles {
		groups = append(groups, formatToggle(t))
	}
	if len(groups) == 1 {
		return groups[0]
	}
	return "[" + strings.Join(groups, ",") + "]"
}

func formatToggle(t Toggle) string {
	days := dayNames[t.Days[0]]
	if len(t.Days) > 1 {
		days = fmt.Sprintf("%s-%s", days, dayNames[t.Days[len(t.Days)-1]])
	}
	if t.Minute == 0 {
		return fmt.Sprintf("(%s,%d)", days, t.Hour)
	}
	return fmt.Sprintf("(%s,%d,%d)", days, t.Hour, t.Minute)
}
