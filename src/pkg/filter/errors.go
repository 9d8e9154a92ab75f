package filter

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTimezone error = errors.New("error invalid timezone set")
	ErrNoBusinessHours error = errors.New("error empty businesshours set")
)

type ErrInvalidHour struct {
	Hour int
}

func (e ErrInvalidHour) Error() string {
	return fmt.Sprintf("error invalid hour specified: %d", e.Hour)
}

type ErrInvalidMinute struct {
	Minute int
}

func (e ErrInvalidMinute) Error() string {
	return fmt.Sprintf("error invalid minute specified: %d", e.Minute)
}

type ErrInvalidBusinessHours struct {
	Value string
}

func (e ErrInvalidBusinessHours) Error() string {
	return fmt.Sprintf("error invalid businesshours value: %q", e.Value)
}
