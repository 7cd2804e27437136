package merge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// itemRule folds a lower-ranked occurrence of an item into the accumulator
type itemRule func(acc *trackedItem, next domain.Item, modID string)

func itemRuleFor(s domain.Strategy) (itemRule, error) {
	switch s {
	case domain.StrategyManual:
		return keepFirst, nil
	case domain.StrategyHighestValue:
		return compareScalars(func(next, cur float64) bool { return next > cur }), nil
	case domain.StrategyLowestValue:
		return compareScalars(func(next, cur float64) bool { return next < cur }), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStrategy, string(s))
	}
}

// keepFirst keeps the higher-priority item. Only passthrough attributes it
// lacks are taken from later occurrences; scalars are never mixed.
func keepFirst(acc *trackedItem, next domain.Item, modID string) {
	acc.fillMissing(next, modID, domain.ScalarAttrs)
}

// compareScalars decides each of Count, Amount and Value on its own.
// When only the incoming side defines a scalar it is taken as is; when both
// are numbers better picks the winner; otherwise the accumulator is kept.
func compareScalars(better func(next, cur float64) bool) itemRule {
	return func(acc *trackedItem, next domain.Item, modID string) {
		for _, key := range domain.ScalarAttrs {
			nv, ok := next.Attrs.Get(key)
			if !ok {
				continue
			}
			cv, has := acc.item.Attrs.Get(key)
			if !has {
				acc.set(key, nv, modID)
				continue
			}
			n, nerr := parseNumber(nv)
			c, cerr := parseNumber(cv)
			if nerr == nil && cerr == nil && better(n, c) {
				acc.set(key, nv, modID)
			}
		}
		acc.fillMissing(next, modID, domain.ScalarAttrs)
	}
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
