package main

import (
	"strings"
	"testing"
)

func TestResolveNamedID(t *testing.T) {
	options := map[string]string{"Living Room": "1", "Bath-Room": "2"}

	for input, want := range map[string]string{
		"living room": "1",
		"LIVING_ROOM": "1",
		"bath room":   "2",
		"2":           "2",
	} {
		got, err := resolveNamedID("zone", input, options)
		if err != nil || got != want {
			t.Errorf("%q: expected %s, got %s (%v)", input, want, got, err)
		}
	}

	_, err := resolveNamedID("zone", "attic", options)
	if err == nil || !strings.Contains(err.Error(), "Living Room (1)") {
		t.Fatalf("expected available zones in error, got %v", err)
	}
}
