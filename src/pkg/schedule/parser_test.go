package schedule

import (
	"reflect"
	"testing"
)

func TestParse_Simple(t *testing.T) {
	p := NewParser("et")
	s := p.Parse("off=(m-f,19);on=(m-f,7);tz=pt")
	if s == nil {
		t.Fatalf("expected schedule, got nil")
	}

	wantOff := []Toggle{{Days: []int{0, 1, 2, 3, 4}, Hour: 19, Minute: 0}}
	if !reflect.DeepEqual(s.Off, wantOff) {
		t.Fatalf("unexpected off toggles: %+v", s.Off)
	}

	wantOn := []Toggle{{Days: []int{0, 1, 2, 3, 4}, Hour: 7, Minute: 0}}
	if !reflect.DeepEqual(s.On, wantOn) {
		t.Fatalf("unexpected on toggles: %+v", s.On)
	}

	if s.TZ != "pt" {
		t.Fatalf("expected tz pt, got %s", s.TZ)
	}
}

func TestParse_BracketGroups(t *testing.T) {
	p := NewParser("et")
	s := p.Parse("off=[(m-f,21),(u,18,30)];on=[(m-f,6,30),(u,10)];tz=pt")
	if s == nil {
		t.Fatalf("expected schedule, got nil")
	}

	wantOff := []Toggle{
		{Days: []int{0, 1, 2, 3, 4}, Hour: 21, Minute: 0},
		{Days: []int{6}, Hour: 18, Minute: 30},
	}
	if !reflect.DeepEqual(s.Off, wantOff) {
		t.Fatalf("unexpected off toggles: %+v", s.Off)
	}

	wantOn := []Toggle{
		{Days: []int{0, 1, 2, 3, 4}, Hour: 6, Minute: 30},
		{Days: []int{6}, Hour: 10, Minute: 0},
	}
	if !reflect.DeepEqual(s.On, wantOn) {
		t.Fatalf("unexpected on toggles: %+v", s.On)
	}
}

func TestParse_DefaultTZ(t *testing.T) {
	p := NewParser("et")
	s := p.Parse("on=(m-f,7)")
	if s == nil {
		t.Fatalf("expected schedule, got nil")
	}
	if s.TZ != "et" {
		t.Fatalf("expected default tz et, got %s", s.TZ)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"unknown key", "foo=(m,5)"},
		{"too few fields", "on=(m)"},
		{"too many fields", "on=(m,5,10,20)"},
		{"non-numeric hour", "on=(m,x)"},
		{"non-numeric minute", "on=(m,5,x)"},
		{"hour out of range", "on=(m,24)"},
		{"minute out of range", "on=(m,5,60)"},
		{"negative hour", "on=(m,-5)"},
		{"empty days", "on=(-,5)"},
		{"unknown day", "on=(m-z,5)"},
		{"empty value", "on="},
		{"bare word", "not-a-schedule"},
		{"double equals", "on=(m,5)=x"},
	}

	p := NewParser("et")
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if s := p.Parse(c.value); s != nil {
				t.Fatalf("expected nil for %q, got %+v", c.value, s)
			}
		})
	}
}

func TestParse_Cache(t *testing.T) {
	p := NewParser("et")

	first := p.Parse("on=(m-f,7);off=(m-f,19)")
	second := p.Parse("on=(m-f,7);off=(m-f,19)")
	if first == nil || second == nil {
		t.Fatalf("expected schedules, got nil")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached parse not equivalent: %+v != %+v", first, second)
	}

	// Failures are cached too
	if s := p.Parse("bogus=(m,5)"); s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
	if s := p.Parse("bogus=(m,5)"); s != nil {
		t.Fatalf("expected cached nil, got %+v", s)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	values := []string{
		"off=(m-f,19);on=(m-f,7);tz=pt",
		"off=[(m-f,21),(u,18,30)];on=[(m-f,6,30),(u,10)];tz=pt",
		"off=(f-m,2,15);tz=gmt",
		"on=(u,10);tz=aet",
	}

	p := NewParser("et")
	for _, v := range values {
		s := p.Parse(v)
		if s == nil {
			t.Fatalf("expected schedule for %q, got nil", v)
		}

		again := p.Parse(s.String())
		if again == nil {
			t.Fatalf("re-parse of %q returned nil", s.String())
		}
		if !reflect.DeepEqual(s, again) {
			t.Fatalf("round trip mismatch for %q: %+v != %+v", v, s, again)
		}
	}
}

func TestExpandDayRange(t *testing.T) {
	cases := []struct {
		days string
		want []int
	}{
		{"m-f", []int{0, 1, 2, 3, 4}},
		{"f-m", []int{4, 5, 6, 0}},
		{"u", []int{6}},
		{"m", []int{0}},
		{"s-u", []int{5, 6}},
		{"m-u", []int{0, 1, 2, 3, 4, 5, 6}},
		{"z", nil},
		{"m-f-u", nil},
		{"", nil},
	}

	for _, c := range cases {
		got := ExpandDayRange(c.days)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("expand(%q) = %v, want %v", c.days, got, c.want)
		}
	}
}

func TestRawData(t *testing.T) {
	data := RawData("off=(m-f,19);on=(m-f,7);tz=pt")
	want := map[string]string{
		"off": "(m-f,19)",
		"on":  "(m-f,7)",
		"tz":  "pt",
	}
	if !reflect.DeepEqual(data, want) {
		t.Fatalf("unexpected raw data: %v", data)
	}

	// Pieces that are not key=value are dropped
	if data := RawData("8:00-18:00 pt"); len(data) != 0 {
		t.Fatalf("expected empty raw data, got %v", data)
	}
}

func TestKeysAreValid(t *testing.T) {
	if !KeysAreValid("on=(m,7);off=(m,19);tz=pt") {
		t.Fatal("expected valid keys")
	}
	if !KeysAreValid("") {
		t.Fatal("expected empty value to have valid keys")
	}
	if KeysAreValid("asdf=(m,7)") {
		t.Fatal("expected invalid key to be rejected")
	}
}

func TestHasResourceSchedule(t *testing.T) {
	if !HasResourceSchedule("on=(m,7);tz=pt", KeyOn) {
		t.Fatal("expected on schedule to be present")
	}
	if HasResourceSchedule("on=(m,7);tz=pt", KeyOff) {
		t.Fatal("expected off schedule to be absent")
	}
	if HasResourceSchedule("tz=pt", KeyOn) {
		t.Fatal("expected tz-only value to have no schedule")
	}
}
