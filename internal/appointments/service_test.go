package appointments

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 1, 12, hour, min, 0, 0, time.UTC)
}

func TestWithinWorkingHours(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"opening slot", at(9, 0), true},
		{"midday", at(14, 0), true},
		{"last slot of the day", at(20, 0), true},
		{"ends exactly at close", at(20, 0), true},
		{"starts at close", at(21, 0), false},
		{"runs past close", at(20, 30), false},
		{"before opening", at(8, 0), false},
		{"just before opening", at(8, 59), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WithinWorkingHours(tc.start); got != tc.want {
				t.Fatalf("WithinWorkingHours(%s) = %v, want %v", tc.start, got, tc.want)
			}
		})
	}
}
