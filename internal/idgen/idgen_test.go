package idgen

import (
	"regexp"
	"strings"
	"testing"
)

var slugChars = regexp.MustCompile(`^[a-z0-9-]*$`)

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses whitespace", "Reference Weather Stations", "reference-weather-stations"},
		{"strips punctuation", "reference %*stat/ions", "reference-stations"},
		{"collapses hyphen runs", "a  --  b", "a-b"},
		{"underscores become hyphens", "north_pier_anemometer", "north-pier-anemometer"},
		{"trims edge hyphens", "--windy--", "windy"},
		{"already clean", "buoy-12", "buoy-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveID(tt.input)
			if got != tt.want {
				t.Errorf("DeriveID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	t.Run("empty name produces a random id", func(t *testing.T) {
		a := DeriveID("")
		b := DeriveID("")
		if a == "" || b == "" {
			t.Fatal("DeriveID(\"\") returned empty id")
		}
		if a == b {
			t.Errorf("two random ids collided: %q", a)
		}
	})

	t.Run("output is always url-safe", func(t *testing.T) {
		inputs := []string{"Hello, World!", "ümlaut städt", "100% /wind\\ speed", ""}
		for _, in := range inputs {
			got := DeriveID(in)
			if !slugChars.MatchString(got) {
				t.Errorf("DeriveID(%q) = %q contains characters outside [a-z0-9-]", in, got)
			}
			if strings.HasPrefix(got, "-") || strings.HasSuffix(got, "-") {
				t.Errorf("DeriveID(%q) = %q has edge hyphens", in, got)
			}
		}
	})
}

func TestRegistrationKey(t *testing.T) {
	keyPattern := regexp.MustCompile(`^[a-z]{10}$`)

	key := RegistrationKey()
	if !keyPattern.MatchString(key) {
		t.Fatalf("RegistrationKey() = %q, want exactly 10 lowercase alphabetic characters", key)
	}

	// Duplicates over 1000 draws are astronomically unlikely (26^10 space);
	// a failure here is a warning sign, not a hard assertion.
	seen := make(map[string]struct{}, 1000)
	duplicates := 0
	for i := 0; i < 1000; i++ {
		k := RegistrationKey()
		if !keyPattern.MatchString(k) {
			t.Fatalf("RegistrationKey() = %q, want 10 lowercase alphabetic characters", k)
		}
		if _, ok := seen[k]; ok {
			duplicates++
		}
		seen[k] = struct{}{}
	}
	if duplicates > 0 {
		t.Logf("warning: %d duplicate registration keys in 1000 draws", duplicates)
	}
}

func TestSuffix(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9]{5}$`)
	for i := 0; i < 50; i++ {
		s := Suffix()
		if !pattern.MatchString(s) {
			t.Fatalf("Suffix() = %q, want 5 lowercase alphanumeric characters", s)
		}
	}
}

func TestResourceID(t *testing.T) {
	t.Run("bounded length for long names", func(t *testing.T) {
		id := ResourceID("sensor", "some name that is really long and such!")
		if len(id) >= 44 {
			t.Errorf("ResourceID length = %d, want < 44 (id %q)", len(id), id)
		}
		if !strings.HasPrefix(id, "sensor-") {
			t.Errorf("ResourceID = %q, want prefix %q as first segment", id, "sensor")
		}
	})

	t.Run("contains name slug", func(t *testing.T) {
		id := ResourceID("platform", "North Pier")
		if !strings.Contains(id, "north-pier") {
			t.Errorf("ResourceID = %q, want slug of the name", id)
		}
	})

	t.Run("no name still yields prefix and suffix", func(t *testing.T) {
		id := ResourceID("host", "")
		if !strings.HasPrefix(id, "host-") {
			t.Errorf("ResourceID = %q, want prefix %q", id, "host")
		}
		if len(id) != len("host-")+5 {
			t.Errorf("ResourceID = %q, want prefix plus 5-char suffix", id)
		}
	})

	t.Run("distinct across calls", func(t *testing.T) {
		if ResourceID("sensor", "anemometer") == ResourceID("sensor", "anemometer") {
			t.Error("two generated ids for the same name collided")
		}
	})
}
