package models

import (
	"errors"
	"testing"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello..."},
		{"multibyte", "café résumé", 6, "caf..."},
		{"tiny limit", "hello", 2, "he"},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateRunes(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestRecordIDString(t *testing.T) {
	t.Run("string id", func(t *testing.T) {
		got, err := RecordIDString(surrealmodels.NewRecordID("embedding", "abc-chunk-0"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "abc-chunk-0" {
			t.Errorf("got %q, want %q", got, "abc-chunk-0")
		}
	})

	t.Run("numeric id", func(t *testing.T) {
		if _, err := RecordIDString(surrealmodels.NewRecordID("embedding", 42)); err == nil {
			t.Errorf("expected error for non-string id")
		}
	})
}

func TestParseTimeBound(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"24h", now.Add(-24 * time.Hour).UnixMilli(), false},
		{"2025-05-01T00:00:00Z", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), false},
		{"yesterday", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeBound(tt.in, now)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("err = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeBound(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
