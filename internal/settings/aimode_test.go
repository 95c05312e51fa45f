package settings

import "testing"

func TestResolveAIMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		present bool
		want    AIMode
	}{
		{"absent defaults to enabled", "", false, AIEnabled},
		{"legacy one", "1", true, AIEnabled},
		{"legacy true", "true", true, AIEnabled},
		{"mixed case true", " True ", true, AIEnabled},
		{"legacy zero", "0", true, AIDisabled},
		{"legacy false", "false", true, AIDisabled},
		{"unrecognized value stays enabled", "yes", true, AIEnabled},
		{"present but empty stays enabled", "", true, AIEnabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveAIMode(tc.raw, tc.present); got != tc.want {
				t.Fatalf("ResolveAIMode(%q, %v) = %s, want %s", tc.raw, tc.present, got, tc.want)
			}
		})
	}
}
