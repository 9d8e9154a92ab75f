// Package filter implements time-based resource scheduling filters. A filter
// reads a schedule from a tag on each resource (falling back to a policy-wide
// default), resolves the schedule's timezone, and decides whether the
// resource is inside its on-window or off-window at the current moment.
package filter

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/flynnkc/oci-offhours/src/pkg/schedule"
	"github.com/flynnkc/oci-offhours/src/pkg/timezone"
)

// Time types a filter can be configured as.
const (
	TypeOn  string = "on"
	TypeOff string = "off"
	TypeBiz string = "biz"
)

// Defaults shared by the on/off hour variants.
const (
	DefaultTag       string = "maid_offhours"
	DefaultTZ        string = "et"
	DefaultOnHour    int    = 7
	DefaultOnMinute  int    = 0
	DefaultOffHour   int    = 19
	DefaultOffMinute int    = 0
)

// Filter is the contract the policy framework drives: Validate at policy
// load, Process once per policy execution.
type Filter interface {
	Validate() error
	Process(resources []Resource) []Resource
}

// Config carries the per-filter options recognized at policy-load time.
// Unset optional fields fall back to the variant's defaults.
type Config struct {
	Tag          string
	DefaultTZ    string
	Weekends     *bool // default true
	WeekendsOnly bool
	OptOut       *bool // default false; true for businesshours variants
	Hour         *int  // onhour or offhour depending on variant
	Minute       *int  // onminute or offminute

	// BusinessHours is the short-form default for the businesshours
	// variants, ex. "8:00-18:00 PT".
	BusinessHours string
	// UpdateTags enables best-effort write-back of the default
	// businesshours tag through the manager's session factory.
	UpdateTags bool
	DryRun     bool
}

// Time is the core on/off hours filter. An instance is built once per policy
// load and is read-only afterwards except for the pass accumulators; it is
// not safe for concurrent use.
type Time struct {
	timeType     string
	tagKey       string
	defaultTZ    string
	weekends     bool
	weekendsOnly bool
	optOut       bool
	hour         int
	minute       int

	defaultSchedule *schedule.Schedule
	parser          *schedule.Parser
	manager         Manager
	clock           Clock
	log             *slog.Logger

	idKey string

	// Pass accumulators, cleared when dumped after a pass.
	optedOut     []Resource
	parseErrors  [][]string
	enabledCount int
}

// NewOnHour builds a filter matching resources inside their on-window.
func NewOnHour(cfg Config, manager Manager) *Time {
	return newTime(TypeOn, cfg, manager, DefaultOnHour, DefaultOnMinute)
}

// NewOffHour builds a filter matching resources inside their off-window.
func NewOffHour(cfg Config, manager Manager) *Time {
	return newTime(TypeOff, cfg, manager, DefaultOffHour, DefaultOffMinute)
}

func newTime(timeType string, cfg Config, manager Manager, defHour, defMinute int) *Time {
	t := Time{
		timeType:     timeType,
		tagKey:       asciiLower(DefaultTag),
		defaultTZ:    DefaultTZ,
		weekends:     true,
		weekendsOnly: cfg.WeekendsOnly,
		hour:         defHour,
		minute:       defMinute,
		manager:      manager,
		clock:        SystemClock{},
		log:          slog.Default(),
	}

	if cfg.Tag != "" {
		t.tagKey = asciiLower(cfg.Tag)
	}
	if cfg.DefaultTZ != "" {
		t.defaultTZ = cfg.DefaultTZ
	}
	if cfg.Weekends != nil {
		t.weekends = *cfg.Weekends
	}
	if cfg.OptOut != nil {
		t.optOut = *cfg.OptOut
	}
	if cfg.Hour != nil {
		t.hour = *cfg.Hour
	}
	if cfg.Minute != nil {
		t.minute = *cfg.Minute
	}

	t.defaultSchedule = t.getDefaultSchedule()
	t.parser = schedule.NewParser(t.defaultTZ)
	return &t
}

// SetClock replaces the time source, returning the filter for chaining.
func (t *Time) SetClock(c Clock) *Time {
	if c != nil {
		t.clock = c
	}
	return t
}

// SetLog replaces the filter's logger.
func (t *Time) SetLog(log *slog.Logger) *Time {
	if log != nil {
		t.log = log
	}
	return t
}

// Validate checks the configuration at policy load. Errors abort the load.
func (t *Time) Validate() error {
	if timezone.Resolve(t.defaultTZ) == nil {
		return ErrInvalidTimezone
	}
	if t.hour < 0 || t.hour > 23 {
		return ErrInvalidHour{Hour: t.hour}
	}
	if t.minute < 0 || t.minute > 59 {
		return ErrInvalidMinute{Minute: t.minute}
	}
	return nil
}

// Process evaluates every resource and returns the matching subset in input
// order. After the pass, accumulated parse errors and opt-outs are dumped to
// the manager's log dir, if any.
func (t *Time) Process(resources []Resource) []Resource {
	matched := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if t.Match(r) {
			matched = append(matched, r)
		}
	}
	t.flush()
	return matched
}

// Match is the per-resource decision.
func (t *Time) Match(r Resource) bool {
	t.ensureIDKey()

	value, found := t.tagValue(r)
	if !found {
		// Not running in opt-out mode and no tag present, we're done.
		if !t.optOut {
			return false
		}
		value = "" // take the defaults
	}

	return t.matchValue(r, value)
}

// matchValue runs the decision for an already-extracted tag value. Exposed
// within the package so the business-hours adapter can pre-transform the
// value and forward here.
func (t *Time) matchValue(r Resource, value string) (matched bool) {
	// Resource opt out, track and record
	if value == TypeOff {
		t.optedOut = append(t.optedOut, r)
		return false
	}

	// One bad tag must never poison the whole pass.
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("failed to process resource",
				slog.String("filter", t.timeType),
				slog.String("id", r.ID(t.idKey)),
				slog.String("value", value),
				slog.Any("panic", rec))
			matched = false
		}
	}()

	return t.processResourceSchedule(r, value, t.timeType)
}

// processResourceSchedule decides whether the resource's schedule and the
// policy match the current time.
func (t *Time) processResourceSchedule(r Resource, value, timeType string) bool {
	rid := r.ID(t.idKey)

	if !utf8.ValidString(value) {
		t.log.Warn("invalid encoding on resource tag",
			slog.String("id", rid))
		t.parseErrors = append(t.parseErrors, []string{rid, value})
		return false
	}

	// Normalize trailing and interior semicolons so values like
	// 'off=(m-f,1);' parse cleanly.
	value = collapseSemicolons(value)

	var sched *schedule.Schedule
	switch {
	case schedule.HasResourceSchedule(value, timeType):
		sched = t.parser.Parse(value)
	case schedule.KeysAreValid(value):
		// Respect a timezone override from the tag
		sched = t.defaultSchedule
		if tz, ok := schedule.RawData(value)[schedule.KeyTZ]; ok {
			override := *t.defaultSchedule
			override.TZ = tz
			sched = &override
		}
	}

	if sched == nil {
		t.log.Warn("invalid schedule on resource",
			slog.String("id", rid),
			slog.String("value", value))
		t.parseErrors = append(t.parseErrors, []string{rid, value})
		return false
	}

	loc := timezone.Resolve(sched.TZ)
	if loc == nil {
		t.log.Warn("could not resolve tz on resource",
			slog.String("id", rid),
			slog.String("value", value))
		t.parseErrors = append(t.parseErrors, []string{rid, value})
		return false
	}
	t.enabledCount++

	now := t.clock.Now(loc)
	now = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(),
		now.Minute(), 0, 0, now.Location())

	matched := schedule.MatchRange(now, schedule.Ranges(sched))
	if t.timeType == TypeOn {
		return matched
	}
	return !matched
}

// tagValue scans the resource's tags for the filter's tag key and normalizes
// the value: ASCII lowercase, surrounding quotes stripped.
func (t *Time) tagValue(r Resource) (string, bool) {
	found := false
	var value string
	for _, tag := range r.Tags() {
		if asciiLower(tag.Key) == t.tagKey {
			value = tag.Value
			found = true
			break
		}
	}
	if !found {
		return "", false
	}

	// Some folks interpret the docs quote marks as literal for values.
	value = strings.Trim(asciiLower(value), `'"`)
	return value, true
}

func (t *Time) ensureIDKey() {
	if t.idKey != "" {
		return
	}
	if t.manager == nil {
		t.idKey = "InstanceId"
		return
	}
	t.idKey = t.manager.GetModel().ID
}

// recordParseError appends to the parse-error accumulator on behalf of a
// wrapping filter.
func (t *Time) recordParseError(r Resource, value string) {
	t.parseErrors = append(t.parseErrors, []string{r.ID(t.idKey), value})
}

// OptedOut returns resources whose tag value was the off sentinel this pass.
func (t *Time) OptedOut() []Resource {
	return t.optedOut
}

// ParseErrors returns the (id, value) pairs that failed to parse this pass.
func (t *Time) ParseErrors() [][]string {
	return t.parseErrors
}

// EnabledCount returns the number of resources that produced a schedule.
func (t *Time) EnabledCount() int {
	return t.enabledCount
}

// flush dumps the pass accumulators as JSON artifacts into the manager's log
// dir and clears them. Best effort; dump failures are logged and ignored.
func (t *Time) flush() {
	var dir string
	if t.manager != nil {
		dir = t.manager.LogDir()
	}

	if len(t.parseErrors) > 0 && dir != "" {
		t.log.Warn("parse errors",
			slog.Int("count", len(t.parseErrors)))
		t.dumpJSON(filepath.Join(dir, "parse_errors.json"), t.parseErrors)
		t.parseErrors = nil
	}
	if len(t.optedOut) > 0 && dir != "" {
		t.log.Debug("disabled count",
			slog.Int("count", len(t.optedOut)))
		t.dumpJSON(filepath.Join(dir, "opted_out.json"), t.optedOut)
		t.optedOut = nil
	}
}

func (t *Time) dumpJSON(path string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		t.log.Error("error marshaling dump artifact",
			slog.String("path", path),
			slog.Any("error", err))
		return
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.log.Error("error writing dump artifact",
			slog.String("path", path),
			slog.Any("error", err))
	}
}

// defaultDays returns the day set the variant's default toggles apply to.
func (t *Time) defaultDays() []int {
	switch {
	case t.weekendsOnly:
		// Source behavior: Friday only, despite the weekend-only name.
		return []int{4}
	case t.weekends:
		return []int{0, 1, 2, 3, 4}
	default:
		return []int{0, 1, 2, 3, 4, 5, 6}
	}
}

// getDefaultSchedule builds the schedule used when a resource opts in
// without its own schedule. It always carries both toggles, the configured
// time type plus its inverse, so a range view can be built.
func (t *Time) getDefaultSchedule() *schedule.Schedule {
	days := t.defaultDays()

	own := schedule.Toggle{Days: days, Hour: t.hour, Minute: t.minute}
	var inverse schedule.Toggle
	if t.timeType == TypeOn {
		inverse = schedule.Toggle{Days: days, Hour: DefaultOffHour, Minute: DefaultOffMinute}
	} else {
		inverse = schedule.Toggle{Days: days, Hour: DefaultOnHour, Minute: DefaultOnMinute}
	}

	s := schedule.Schedule{TZ: t.defaultTZ}
	if t.timeType == TypeOn {
		s.On = []schedule.Toggle{own}
		s.Off = []schedule.Toggle{inverse}
	} else {
		s.Off = []schedule.Toggle{own}
		s.On = []schedule.Toggle{inverse}
	}
	return &s
}

// collapseSemicolons drops empty components from repeated or trailing
// semicolons.
func collapseSemicolons(value string) string {
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(value, ";") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ";")
}

// asciiLower folds ASCII upper case only; tag keys and grammar tokens are
// ASCII by construction.
func asciiLower(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if b == nil {
				b = []byte(s)
			}
			b[i] = c + ('a' - 'A')
		}
	}
	if b == nil {
		return s
	}
	return string(b)
}
