package intake

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

var recordIDPattern = regexp.MustCompile(`^patient-[0-9]+-[0-9a-z]{9}$`)

func TestParseIDStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    IDStrategy
		wantErr bool
	}{
		{"", IDStrategyTimestamp, false},
		{"timestamp", IDStrategyTimestamp, false},
		{" UUID ", IDStrategyUUID, false},
		{"sequence", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIDStrategy(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIDGenerator_RecordIDFormat(t *testing.T) {
	g := NewIDGenerator(IDStrategyTimestamp)
	ts := time.UnixMilli(1710498645123)

	for i := 0; i < 50; i++ {
		id := g.RecordID(ts)
		if !recordIDPattern.MatchString(id) {
			t.Fatalf("record id %q does not match %s", id, recordIDPattern)
		}
		if !strings.HasPrefix(id, "patient-1710498645123-") {
			t.Fatalf("record id %q does not embed the timestamp", id)
		}
	}
}

func TestIDGenerator_DeterministicSource(t *testing.T) {
	g := NewIDGenerator(IDStrategyTimestamp)
	g.intn = func(int) int { return 0 }

	if got := g.RecordID(time.UnixMilli(42)); got != "patient-42-000000000" {
		t.Errorf("unexpected record id %q", got)
	}
	if got := g.MRN(); got != "MRN-100000" {
		t.Errorf("unexpected MRN %q", got)
	}
}

func TestIDGenerator_MRNRange(t *testing.T) {
	g := NewIDGenerator(IDStrategyTimestamp)

	for i := 0; i < 200; i++ {
		mrn := g.MRN()
		if !strings.HasPrefix(mrn, MRNPrefix) {
			t.Fatalf("MRN %q lacks prefix", mrn)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(mrn, MRNPrefix))
		if err != nil {
			t.Fatalf("MRN %q is not numeric: %v", mrn, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("MRN %q out of range", mrn)
		}
	}
}

func TestIDGenerator_UUIDStrategy(t *testing.T) {
	fixed := uuid.MustParse("6ba7b810-9dad-41d1-80b4-00c04fd430c8")
	g := NewIDGenerator(IDStrategyUUID)
	g.newUUID = func() uuid.UUID { return fixed }

	if got := g.RecordID(time.Now()); got != "patient-6ba7b810-9dad-41d1-80b4-00c04fd430c8" {
		t.Errorf("unexpected record id %q", got)
	}
}
