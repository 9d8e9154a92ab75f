package schedule

import (
	"strconv"
	"strings"
)

// Parser parses tag values into schedules. Results, including failures, are
// cached by raw input string; tag values are short, repetitive strings and
// entries never expire. A Parser is not safe for concurrent use; hosts that
// share one across goroutines must serialize calls.
type Parser struct {
	defaultTZ string
	cache     map[string]*Schedule
}

// NewParser returns a parser that fills in defaultTZ when a tag value does
// not carry its own tz key.
func NewParser(defaultTZ string) *Parser {
	return &Parser{
		defaultTZ: defaultTZ,
		cache:     make(map[string]*Schedule),
	}
}

// RawData splits a tag value into its key=value components without parsing
// the values. Pieces that are not key=value are dropped. Used to peek at
// keys and the tz before committing to a full parse.
func RawData(tagValue string) map[string]string {
	var pieces []string
	for _, p := range strings.Split(tagValue, " ") {
		pieces = append(pieces, strings.Split(p, ";")...)
	}

	data := make(map[string]string)
	for _, piece := range pieces {
		kv := strings.Split(piece, "=")
		if len(kv) != 2 {
			continue
		}
		data[kv[0]] = kv[1]
	}
	return data
}

// KeysAreValid reports whether every key in the tag value is one of on, off
// or tz.
func KeysAreValid(tagValue string) bool {
	for key := range RawData(tagValue) {
		switch key {
		case KeyOn, KeyOff, KeyTZ:
		default:
			return false
		}
	}
	return true
}

// HasResourceSchedule reports whether the tag value carries its own schedule
// for the given time type (on or off).
func HasResourceSchedule(tagValue, timeType string) bool {
	_, ok := RawData(tagValue)[timeType]
	return ok
}

// Parse parses a tag value into a schedule, or nil if the value is invalid.
// The whole parse fails if any toggle fails validation.
func (p *Parser) Parse(tagValue string) *Schedule {
	if s, ok := p.cache[tagValue]; ok {
		return s
	}

	s := p.parse(tagValue)
	p.cache[tagValue] = s
	return s
}

func (p *Parser) parse(tagValue string) *Schedule {
	if !KeysAreValid(tagValue) {
		return nil
	}

	s := Schedule{}
	for _, piece := range strings.Split(tagValue, ";") {
		kv := strings.Split(piece, "=")
		if len(kv) != 2 {
			return nil
		}
		key, value := kv[0], kv[1]

		switch key {
		case KeyTZ:
			s.TZ = value
		default:
			toggles := parseToggles(value)
			if toggles == nil {
				return nil
			}
			if key == KeyOn {
				s.On = toggles
			} else {
				s.Off = toggles
			}
		}
	}

	// add default timezone, if none supplied or blank
	if s.TZ == "" {
		s.TZ = p.defaultTZ
	}

	return &s
}

// parseToggles parses an on/off value into its toggles. Returns nil on any
// malformed group.
func parseToggles(lexeme string) []Toggle {
	lexeme = strings.NewReplacer("[", "", "]", "").Replace(lexeme)

	var parsed []Toggle
	for _, expr := range strings.Split(lexeme, ",(") {
		tokens := strings.Split(strings.NewReplacer("(", "", ")", "").Replace(expr), ",")

		// groups are either (<days>,<hour>) or (<days>,<hour>,<minute>)
		if len(tokens) < 2 || len(tokens) > 3 {
			return nil
		}

		minute := 0
		if len(tokens) == 3 {
			m, ok := parseDigits(tokens[2])
			if !ok || m > 59 {
				return nil
			}
			minute = m
		}

		hour, ok := parseDigits(tokens[1])
		if !ok || hour > 23 {
			return nil
		}

		days := ExpandDayRange(tokens[0])
		if len(days) == 0 {
			return nil
		}

		parsed = append(parsed, Toggle{Days: days, Hour: hour, Minute: minute})
	}

	return parsed
}

// parseDigits parses a non-negative integer composed only of digits.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExpandDayRange expands a day token into weekday numbers. A single day
// yields one element; a range expands inclusively with wrap-around support,
// so f-m yields 4,5,6,0. Returns nil for malformed input.
func ExpandDayRange(days string) []int {
	if d, ok := dayMap[days]; ok {
		return []int{d}
	}

	var bounds []int
	for _, tok := range strings.Split(days, "-") {
		if d, ok := dayMap[tok]; ok {
			bounds = append(bounds, d)
		}
	}
	if len(bounds) != 2 {
		return nil
	}

	var expanded []int
	if bounds[0] > bounds[1] {
		// wrap around, aka friday-monday = 4,5,6,0
		for d := bounds[0]; d < 7; d++ {
			expanded = append(expanded, d)
		}
		for d := 0; d <= bounds[1]; d++ {
			expanded = append(expanded, d)
		}
		return expanded
	}

	for d := bounds[0]; d <= bounds[1]; d++ {
		expanded = append(expanded, d)
	}
	return expanded
}
