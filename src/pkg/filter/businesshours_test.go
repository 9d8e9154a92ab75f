package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bizResource(id, value string) Resource {
	if value == "" {
		return testResource(id)
	}
	return testResource(id, Tag{Key: "BusinessHours", Value: value})
}

func TestBusinessHoursRewrite(t *testing.T) {
	b := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil)

	rewritten, err := b.rewrite("8:00-18:00 pt")
	require.NoError(t, err)
	assert.Equal(t, "off=(m-f,18);on=(m-f,8);tz=pt", rewritten)
}

func TestBusinessHoursOnMatch(t *testing.T) {
	r := bizResource("i-1", "8:00-18:00 PT")

	// Wednesday 09:00 Pacific, inside business hours
	b := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil).
		SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})
	assert.True(t, b.Match(r))

	// Wednesday 20:00 Pacific, after hours
	b = NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil).
		SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 20, 0)})
	assert.False(t, b.Match(r))
}

func TestBusinessHoursComplement(t *testing.T) {
	r := bizResource("i-1", "8:00-18:00 PT")

	moments := []time.Time{
		laTime(t, 2023, time.June, 14, 9, 0),
		laTime(t, 2023, time.June, 14, 20, 0),
		laTime(t, 2023, time.June, 17, 12, 0), // Saturday
	}

	for _, now := range moments {
		on := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil).
			SetClock(fakeClock{t: now})
		off := NewBusinessHoursOff(Config{BusinessHours: DefaultBusinessHours}, nil).
			SetClock(fakeClock{t: now})
		assert.Equal(t, on.Match(r), !off.Match(r), "at %v", now)
	}
}

func Test24HourResourcesNeverStopped(t *testing.T) {
	for _, value := range []string{"24hours", "24Hours", "24hour", " 24HOURS "} {
		r := bizResource("i-1", value)

		b := NewBusinessHoursOff(Config{BusinessHours: DefaultBusinessHours}, nil).
			SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 23, 0)})
		assert.False(t, b.Match(r), "value %q", value)

		b = NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil).
			SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})
		assert.False(t, b.Match(r), "value %q", value)
	}
}

func TestBusinessHoursDefaultSubstitution(t *testing.T) {
	// No tag at all: businesshours variants default to opt-out, so the
	// configured default applies.
	r := bizResource("i-1", "")

	b := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil).
		SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})
	assert.True(t, b.Match(r))

	b = NewBusinessHoursOff(Config{BusinessHours: DefaultBusinessHours}, nil).
		SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 20, 0)})
	assert.True(t, b.Match(r))
}

func TestBusinessHoursOptIn(t *testing.T) {
	optOut := false
	r := bizResource("i-1", "")

	b := NewBusinessHoursOn(Config{
		BusinessHours: DefaultBusinessHours,
		OptOut:        &optOut,
	}, nil).SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})
	assert.False(t, b.Match(r))
}

func TestBusinessHoursOffSentinel(t *testing.T) {
	r := bizResource("i-1", "off")

	b := NewBusinessHoursOff(Config{BusinessHours: DefaultBusinessHours}, nil).
		SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 23, 0)})
	assert.False(t, b.Match(r))
	require.Len(t, b.OptedOut(), 1)
}

func TestBusinessHoursInvalidShortForm(t *testing.T) {
	cases := []string{
		"8-18 pt",
		"8:00-18:00",
		"8:00 pt",
		"25:00-18:00 pt",
		"x:00-18:00 pt",
	}

	for _, value := range cases {
		r := bizResource("i-1", value)

		b := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil).
			SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})
		assert.False(t, b.Match(r), "value %q", value)
		assert.Len(t, b.ParseErrors(), 1, "value %q", value)
	}
}

func TestBusinessHoursValidate(t *testing.T) {
	b := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, nil)
	assert.NoError(t, b.Validate())

	b = NewBusinessHoursOn(Config{}, nil)
	assert.ErrorIs(t, b.Validate(), ErrNoBusinessHours)

	b = NewBusinessHoursOn(Config{BusinessHours: "whenever"}, nil)
	var invalid ErrInvalidBusinessHours
	assert.ErrorAs(t, b.Validate(), &invalid)
}

func TestIs24Hours(t *testing.T) {
	assert.True(t, Is24Hours("24hours"))
	assert.True(t, Is24Hours("24HOUR"))
	assert.False(t, Is24Hours("24"))
	assert.False(t, Is24Hours(""))
}

func TestBusinessHoursTagWriteBack(t *testing.T) {
	session := &fakeSession{}
	m := &fakeSessionManager{
		fakeManager: fakeManager{id: "InstanceId"},
		session:     session,
	}

	resources := []Resource{
		bizResource("i-1", ""),
		bizResource("i-2", "9:00-17:00 et"),
	}

	b := NewBusinessHoursOn(Config{
		BusinessHours: DefaultBusinessHours,
		UpdateTags:    true,
	}, m).SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})

	b.Process(resources)

	require.Len(t, session.requests, 1)
	req := session.requests[0]
	assert.Equal(t, []string{"i-1"}, req.Resources)
	require.Len(t, req.Tags, 1)
	assert.Equal(t, "businesshours", req.Tags[0].Key)
	assert.Equal(t, DefaultBusinessHours, req.Tags[0].Value)
	assert.False(t, req.DryRun)
}

func TestBusinessHoursTagWriteBackDisabled(t *testing.T) {
	session := &fakeSession{}
	m := &fakeSessionManager{
		fakeManager: fakeManager{id: "InstanceId"},
		session:     session,
	}

	b := NewBusinessHoursOn(Config{BusinessHours: DefaultBusinessHours}, m).
		SetClock(fakeClock{t: laTime(t, 2023, time.June, 14, 9, 0)})

	b.Process([]Resource{bizResource("i-1", "")})
	assert.Empty(t, session.requests)
}
