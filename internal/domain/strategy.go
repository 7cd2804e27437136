package domain

import (
	"fmt"
	"strings"
)

// Strategy defines how competing item definitions are merged
type Strategy string

const (
	// StrategyManual keeps the item from the highest-priority package
	StrategyManual Strategy = "manual"

	// StrategyHighestValue keeps the numerically largest Count, Amount and Value
	StrategyHighestValue Strategy = "highest-value"

	// StrategyLowestValue keeps the numerically smallest Count, Amount and Value
	StrategyLowestValue Strategy = "lowest-value"
)

// IsValid checks if the strategy is a known value
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyManual, StrategyHighestValue, StrategyLowestValue:
		return true
	}
	return false
}

// String returns the wire name of the strategy
func (s Strategy) String() string {
	return string(s)
}

// Description returns a one-line explanation for prompts and help text
func (s Strategy) Description() string {
	switch s {
	case StrategyManual:
		return "highest priority mod wins each item"
	case StrategyHighestValue:
		return "largest Count, Amount and Value win independently"
	case StrategyLowestValue:
		return "smallest Count, Amount and Value win independently"
	default:
		return "unknown"
	}
}

// AllStrategies returns every supported strategy in display order
func AllStrategies() []Strategy {
	return []Strategy{StrategyManual, StrategyHighestValue, StrategyLowestValue}
}

// ParseStrategy parses a resolution method name (case-insensitive).
// An empty string selects StrategyManual.
func ParseStrategy(s string) (Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return StrategyManual, nil
	}
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q (expected manual, highest-value or lowest-value)", ErrInvalidStrategy, s)
	}
	return st, nil
}
