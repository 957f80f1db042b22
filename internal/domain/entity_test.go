package domain

import (
	"testing"
	"time"
)

func TestMoreSpecificType(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"person beats other", "OTHER", "PERSON", "PERSON"},
		{"person kept over other", "PERSON", "OTHER", "PERSON"},
		{"person beats organization", "ORGANIZATION", "PERSON", "PERSON"},
		{"free-form beats other", "OTHER", "PROGRAMMING_LANGUAGE", "PROGRAMMING_LANGUAGE"},
		{"concept kept over free-form", "CONCEPT", "PROGRAMMING_LANGUAGE", "CONCEPT"},
		{"tie keeps existing", "LOCATION", "LOCATION", "LOCATION"},
		{"empty incoming keeps existing", "PERSON", "", "PERSON"},
		{"empty existing takes incoming", "", "PRODUCT", "PRODUCT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MoreSpecificType(tt.existing, tt.incoming)
			if got != tt.want {
				t.Errorf("MoreSpecificType(%q, %q) = %q, want %q", tt.existing, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestPrefixOnWordBoundary(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Alice", "Alice Smith", true},
		{"Alice Smith", "Alice", true},
		{"alice", "Alice Smith", true},
		{"Alice", "Alice", true},
		{"Al", "Alice", false},
		{"Alice", "Alicia Keys", false},
		{"", "Alice", false},
	}

	for _, tt := range tests {
		if got := PrefixOnWordBoundary(tt.a, tt.b); got != tt.want {
			t.Errorf("PrefixOnWordBoundary(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalizeRelationTypeTable(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"works at", "WORKS_AT"},
		{"WORKS_AT", "WORKS_AT"},
		{"is married-to", "IS_MARRIED_TO"},
		{"  lives   in  ", "LIVES_IN"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeRelationType(tt.in); got != tt.want {
			t.Errorf("NormalizeRelationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryLive(t *testing.T) {
	now := time.Now().UTC()

	m := Memory{State: StateActive}
	if !m.Live() {
		t.Error("active memory without invalidAt should be live")
	}

	m = Memory{State: StateActive, InvalidAt: &now}
	if m.Live() {
		t.Error("invalidated memory should not be live")
	}

	m = Memory{State: StateDeleted}
	if m.Live() {
		t.Error("deleted memory should not be live")
	}

	m = Memory{State: StatePaused}
	if !m.Live() {
		t.Error("paused memory is still temporally live")
	}
}

func TestValidState(t *testing.T) {
	for _, s := range []string{"active", "paused", "archived", "deleted"} {
		if !ValidState(s) {
			t.Errorf("ValidState(%q) = false, want true", s)
		}
	}
	if ValidState("Active") || ValidState("") || ValidState("gone") {
		t.Error("unexpected state accepted")
	}
}
