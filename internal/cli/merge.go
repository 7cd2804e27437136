package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ipmtool/internal/config"
	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/identity"
	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/service"
)

// MergeFlags holds merge command flags
type MergeFlags struct {
	Workshop             string
	Strategy             string
	CombineOnlyConflicts bool
	Order                []string
	NoInput              bool
	StateFile            string
}

func (a *App) newMergeCommand() *cobra.Command {
	var flags MergeFlags

	cmd := &cobra.Command{
		Use:   "merge <mods-dir>",
		Short: "Merge inventory presets into the zipmtool mod",
		Long: `Merge every InventoryPreset table found in the mods directory.

With the manual method, conflicting items are resolved by mod_order.txt or by
--order (highest priority first). When neither exists the merge pauses: on a
terminal you are asked for the order, otherwise the run is saved to the state
file and can be finished with "ipmtool resume".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMerge(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Workshop, "workshop", "w", "", "workshop content folder scanned after the mods directory")
	cmd.Flags().StringVarP(&flags.Strategy, "strategy", "s", "", "conflict resolution: manual, highest-value, lowest-value")
	cmd.Flags().BoolVar(&flags.CombineOnlyConflicts, "combine-only-conflicts", false, "only write presets defined by more than one mod")
	cmd.Flags().StringSliceVar(&flags.Order, "order", nil, "manual mod order, highest priority first")
	cmd.Flags().BoolVar(&flags.NoInput, "no-input", false, "never prompt; save the pending run instead")
	cmd.Flags().StringVar(&flags.StateFile, "state-file", "", "where a paused run is saved (default is <history dir>/pending.yaml)")

	return cmd
}

// request merges flag values over the config file
func (a *App) request(cmd *cobra.Command, root string, flags MergeFlags) service.Request {
	req := service.Request{
		Root:                 config.ExpandPath(root),
		Strategy:             a.cfg.Strategy(),
		CombineOnlyConflicts: a.cfg.Merge.CombineOnlyConflicts,
		ManualOrder:          normalizeOrder(flags.Order),
	}
	if cmd.Flags().Changed("strategy") {
		req.Strategy = domain.Strategy(flags.Strategy)
	}
	if cmd.Flags().Changed("combine-only-conflicts") {
		req.CombineOnlyConflicts = flags.CombineOnlyConflicts
	}
	switch {
	case flags.Workshop != "":
		req.SecondaryRoot = config.ExpandPath(flags.Workshop)
	case a.cfg.Merge.WorkshopRoot != "":
		req.SecondaryRoot = config.ExpandPath(a.cfg.Merge.WorkshopRoot)
	}
	return req
}

func (a *App) runMerge(cmd *cobra.Command, root string, flags MergeFlags) error {
	ctx := contextOf(cmd)

	svc, err := a.service()
	if err != nil {
		return err
	}

	req := a.request(cmd, root, flags)
	bar := a.newProgress()
	req.Progress = bar

	outcome := svc.Run(ctx, req)
	bar.Finish()

	needs, ok := outcome.(*service.NeedsInput)
	if !ok {
		return a.finish(outcome)
	}

	if !flags.NoInput && a.interactive() {
		return a.resolveInteractively(ctx, svc, needs.Pending)
	}

	path := a.pendingPath(flags.StateFile)
	if err := service.SavePending(path, needs.Pending); err != nil {
		return err
	}
	logger.Get().Info("saved pending run", "run", needs.Pending.RunID, "path", path)

	if !a.flags.JSON {
		a.renderConflicts(needs.Pending.Conflicts)
		a.renderModDetails(needs.Pending.ModDetails)
		s := a.styles()
		fmt.Fprintln(a.out, s.warn.Render(service.MsgConflictsDetected))
		fmt.Fprintf(a.out, "Finish with: %s\n", s.dim.Render(fmt.Sprintf(
			"ipmtool resume --state-file %s --order %s", path, strings.Join(needs.Pending.ModIDs(), ","))))
	}
	return a.finish(needs)
}

// resolveInteractively prompts for an order and resumes the paused run
func (a *App) resolveInteractively(ctx context.Context, svc *service.MergeService, pending *service.PendingRun) error {
	a.renderConflicts(pending.Conflicts)

	order, err := promptOrder(ctx, pending)
	if err != nil {
		return err
	}
	res := service.Resolution{ManualOrder: order, Cancel: len(order) == 0}
	return a.finish(svc.Resume(ctx, pending, res))
}

// normalizeOrder brings --order values to mod id form and drops empty ones
func normalizeOrder(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = identity.Normalize(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
