package domain

import (
	"errors"
	"testing"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyManual, false},
		{"manual", StrategyManual, false},
		{"Highest-Value", StrategyHighestValue, false},
		{" lowest-value ", StrategyLowestValue, false},
		{"newest", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidStrategy) {
				t.Errorf("ParseStrategy(%q) error = %v, want ErrInvalidStrategy", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStrategy(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAllStrategiesValid(t *testing.T) {
	for _, s := range AllStrategies() {
		if !s.IsValid() {
			t.Errorf("strategy %q should be valid", s)
		}
		if s.Description() == "unknown" {
			t.Errorf("strategy %q has no description", s)
		}
	}
}

func TestAttrsSetAndGet(t *testing.T) {
	var attrs Attrs
	attrs.Set(AttrName, "Sword")
	attrs.Set(AttrCount, "1")
	attrs.Set(AttrCount, "5")

	if len(attrs) != 2 {
		t.Fatalf("expected 2 attrs, got %d", len(attrs))
	}
	if v, ok := attrs.Get(AttrCount); !ok || v != "5" {
		t.Errorf("expected Count=5, got %q (present=%v)", v, ok)
	}
	if attrs[0].Key != AttrName {
		t.Errorf("expected Name to stay first, got %s", attrs[0].Key)
	}
}

func TestItemValuesKey(t *testing.T) {
	item := Item{Attrs: Attrs{{AttrName, "Sword"}, {AttrValue, "3"}, {AttrCount, "1"}}}
	if got := item.Values().Key(); got != "1__3" {
		t.Errorf("expected key 1__3, got %s", got)
	}
}
