package filter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/flynnkc/oci-offhours/src/pkg/schedule"
)

// Defaults for the businesshours variants.
const (
	DefaultBusinessHoursTag string = "businesshours"
	DefaultBusinessHoursTZ  string = "pt"
	DefaultBusinessHours    string = "8:00-18:00 PT"
)

// Sentinel values for resources that run around the clock; they are never
// matched for stopping.
const (
	sentinel24Hours string = "24hours"
	sentinel24Hour  string = "24hour"
)

// BusinessHours rewrites the compact human schedule form, ex.
// "8:00-18:00 PT", into the canonical schedule grammar and forwards the
// decision to an inner on/off hour filter. Composition replaces the
// source's diamond inheritance.
type BusinessHours struct {
	inner        *Time
	defaultHours string
	updateTags   bool
	dryRun       bool
	log          *slog.Logger

	// ids of resources that fell back to the default schedule this pass,
	// candidates for tag write-back.
	untagged []string
}

// NewBusinessHoursOn builds a businesshours filter matching resources inside
// business hours.
func NewBusinessHoursOn(cfg Config, manager Manager) *BusinessHours {
	return newBusinessHours(TypeOn, cfg, manager)
}

// NewBusinessHoursOff builds a businesshours filter matching resources
// outside business hours.
func NewBusinessHoursOff(cfg Config, manager Manager) *BusinessHours {
	return newBusinessHours(TypeOff, cfg, manager)
}

func newBusinessHours(timeType string, cfg Config, manager Manager) *BusinessHours {
	// Businesshours variants default to opt-out with their own tag and tz.
	if cfg.Tag == "" {
		cfg.Tag = DefaultBusinessHoursTag
	}
	if cfg.DefaultTZ == "" {
		cfg.DefaultTZ = DefaultBusinessHoursTZ
	}
	if cfg.OptOut == nil {
		optOut := true
		cfg.OptOut = &optOut
	}

	var inner *Time
	if timeType == TypeOn {
		inner = NewOnHour(cfg, manager)
	} else {
		inner = NewOffHour(cfg, manager)
	}

	return &BusinessHours{
		inner:        inner,
		defaultHours: cfg.BusinessHours,
		updateTags:   cfg.UpdateTags,
		dryRun:       cfg.DryRun,
		log:          slog.Default(),
	}
}

// SetClock replaces the time source of the inner filter.
func (b *BusinessHours) SetClock(c Clock) *BusinessHours {
	b.inner.SetClock(c)
	return b
}

// SetLog replaces the filter's logger.
func (b *BusinessHours) SetLog(log *slog.Logger) *BusinessHours {
	if log != nil {
		b.log = log
		b.inner.SetLog(log)
	}
	return b
}

// Validate checks configuration at policy load: the businesshours default
// must be present and well formed on top of the core checks.
func (b *BusinessHours) Validate() error {
	if b.defaultHours == "" {
		return ErrNoBusinessHours
	}
	if _, err := parseShort(asciiLower(b.defaultHours)); err != nil {
		return err
	}
	return b.inner.Validate()
}

// Process evaluates every resource and returns the matching subset in input
// order, then dumps accumulators and optionally writes default tags back.
func (b *BusinessHours) Process(resources []Resource) []Resource {
	matched := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if b.Match(r) {
			matched = append(matched, r)
		}
	}

	if b.updateTags && len(b.untagged) > 0 {
		b.writeDefaultTags()
	}
	b.untagged = nil

	b.inner.flush()
	return matched
}

// Match pre-transforms the tag value and forwards to the inner filter.
func (b *BusinessHours) Match(r Resource) bool {
	b.inner.ensureIDKey()

	value, found := b.inner.tagValue(r)
	if !found {
		if !b.inner.optOut {
			return false
		}
		value = ""
	}

	// Resource opt out goes through the inner filter so it is recorded.
	if value == TypeOff {
		return b.inner.matchValue(r, value)
	}

	// Around-the-clock resources are never stopped.
	if Is24Hours(value) {
		return false
	}

	if value == "" {
		b.untagged = append(b.untagged, r.ID(b.inner.idKey))
		value = asciiLower(b.defaultHours)
	}

	rewritten, err := b.rewrite(value)
	if err != nil {
		b.log.Warn("invalid businesshours on resource",
			slog.String("id", r.ID(b.inner.idKey)),
			slog.String("value", value))
		b.inner.recordParseError(r, value)
		return false
	}

	return b.inner.matchValue(r, rewritten)
}

// rewrite converts the short form into the canonical grammar, ex.
// "8:00-18:00 pt" into "off=(m-f,18);on=(m-f,8);tz=pt".
func (b *BusinessHours) rewrite(value string) (string, error) {
	short, err := parseShort(value)
	if err != nil {
		return "", err
	}

	days := b.inner.defaultDays()
	s := schedule.Schedule{
		On:  []schedule.Toggle{{Days: days, Hour: short.OnHour}},
		Off: []schedule.Toggle{{Days: days, Hour: short.OffHour}},
		TZ:  short.TZ,
	}
	return s.String(), nil
}

// OptedOut returns resources whose tag value was the off sentinel this pass.
func (b *BusinessHours) OptedOut() []Resource {
	return b.inner.OptedOut()
}

// ParseErrors returns the (id, value) pairs that failed to parse this pass.
func (b *BusinessHours) ParseErrors() [][]string {
	return b.inner.ParseErrors()
}

// writeDefaultTags attaches the default businesshours tag to resources that
// fell back to the default schedule. Best effort through the manager's
// session factory; decisions are unaffected.
func (b *BusinessHours) writeDefaultTags() {
	sf, ok := b.inner.manager.(SessionFactory)
	if !ok {
		return
	}
	session := sf.Session()
	if session == nil {
		return
	}

	req := CreateTagsRequest{
		Resources: b.untagged,
		Tags:      []Tag{{Key: b.inner.tagKey, Value: b.defaultHours}},
		DryRun:    b.dryRun,
	}

	err := retry(3, time.Second, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return session.CreateTags(ctx, req)
	})
	if err != nil {
		b.log.Error("error writing default businesshours tags",
			slog.Int("count", len(b.untagged)),
			slog.Any("error", err))
	}
}

type shortForm struct {
	OnHour  int
	OffHour int
	TZ      string
}

// parseShort splits a value like "8:00-18:00 pt" into its hours and
// timezone. Minutes are deliberately discarded; the short form is hour
// granularity only.
func parseShort(value string) (shortForm, error) {
	rangeAndTZ := strings.Split(value, " ")
	if len(rangeAndTZ) != 2 {
		return shortForm{}, ErrInvalidBusinessHours{Value: value}
	}
	tz := asciiLower(rangeAndTZ[1])

	hours := strings.Split(rangeAndTZ[0], "-")
	if len(hours) != 2 {
		return shortForm{}, ErrInvalidBusinessHours{Value: value}
	}

	onHour, err := shortHour(hours[0])
	if err != nil {
		return shortForm{}, ErrInvalidBusinessHours{Value: value}
	}
	offHour, err := shortHour(hours[1])
	if err != nil {
		return shortForm{}, ErrInvalidBusinessHours{Value: value}
	}

	return shortForm{OnHour: onHour, OffHour: offHour, TZ: tz}, nil
}

func shortHour(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, ErrInvalidBusinessHours{Value: hhmm}
	}
	hour, ok := parseShortDigits(parts[0])
	if !ok || hour > 23 {
		return 0, ErrInvalidBusinessHours{Value: hhmm}
	}
	return hour, nil
}

func parseShortDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

// Is24Hours reports whether the tag value marks an around-the-clock
// resource.
func Is24Hours(value string) bool {
	v := asciiLower(strings.TrimSpace(value))
	return v == sentinel24Hours || v == sentinel24Hour
}

// retry runs fn up to attempts times with doubling delay between failures.
func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
