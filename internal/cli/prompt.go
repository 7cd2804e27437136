package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/huh"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/service"
)

// cancelChoice is the select value that aborts the merge
const cancelChoice = "\x00cancel"

// promptOrder asks for the mods from highest to lowest priority.
// An empty order means the user cancelled.
func promptOrder(ctx context.Context, pending *service.PendingRun) ([]string, error) {
	remaining := pending.ModIDs()
	items := itemCounts(pending.ModDetails)
	var order []string

	for len(remaining) > 1 {
		var choice string
		options := make([]huh.Option[string], 0, len(remaining)+1)
		for _, id := range remaining {
			options = append(options, huh.NewOption(fmt.Sprintf("%s (%d items)", id, items[id]), id))
		}
		options = append(options, huh.NewOption("Cancel merge", cancelChoice))

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("Priority %d of %d", len(order)+1, len(order)+len(remaining))).
					Description("Pick the mod whose values should win conflicts").
					Options(options...).
					Value(&choice),
			),
		)
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read mod order: %w", err)
		}
		if choice == cancelChoice {
			return nil, nil
		}

		order = append(order, choice)
		remaining = slices.DeleteFunc(remaining, func(id string) bool { return id == choice })
	}
	order = append(order, remaining...)

	confirmed := true
	confirm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Merge with this order?").
				Description(describeOrder(order)).
				Affirmative("Merge").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := confirm.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to confirm mod order: %w", err)
	}
	if !confirmed {
		return nil, nil
	}
	return order, nil
}

func itemCounts(details []domain.ModDetail) map[string]int {
	counts := make(map[string]int, len(details))
	for _, d := range details {
		counts[d.ID] += len(d.PresetItems)
	}
	return counts
}

func describeOrder(order []string) string {
	var s string
	for i, id := range order {
		if i > 0 {
			s += "\n"
		}
		s += fmt.Sprintf("%d. %s", i+1, id)
	}
	return s
}
