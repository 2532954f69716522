package lockfile

import (
	"testing"
	"time"
)

func TestEntry_IsStale(t *testing.T) {
	entry := Entry{RequestedRef: "stable"}

	tests := []struct {
		name         string
		requestedRef string
		expected     bool
	}{
		{"same ref", "stable", false},
		{"different ref", "devel", true},
		{"remote head", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.IsStale(tt.requestedRef); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestEntry_Age(t *testing.T) {
	entry := Entry{FetchedAt: time.Now().Add(-1 * time.Hour)}

	age := entry.Age()
	if age < 59*time.Minute || age > 61*time.Minute {
		t.Errorf("expected age around 1 hour, got %v", age)
	}
}

func TestNewEntry(t *testing.T) {
	before := time.Now()
	entry := NewEntry("https://download.example.com/oss", "http", "", "sha256:abc")

	if entry.URL != "https://download.example.com/oss" || entry.Type != "http" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.ResolvedRef != "sha256:abc" {
		t.Errorf("expected resolved ref sha256:abc, got %s", entry.ResolvedRef)
	}
	if entry.FetchedAt.Before(before) {
		t.Error("expected FetchedAt to be set to now")
	}
}
