package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/service"
)

// ResumeFlags holds resume command flags
type ResumeFlags struct {
	StateFile string
	Order     []string
	Cancel    bool
}

func (a *App) newResumeCommand() *cobra.Command {
	var flags ResumeFlags

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Finish a merge that paused for a manual mod order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runResume(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.StateFile, "state-file", "", "pending run saved by merge (default is <history dir>/pending.yaml)")
	cmd.Flags().StringSliceVar(&flags.Order, "order", nil, "mod order, highest priority first")
	cmd.Flags().BoolVar(&flags.Cancel, "cancel", false, "cancel the pending run")
	cmd.MarkFlagsMutuallyExclusive("order", "cancel")

	return cmd
}

func (a *App) runResume(cmd *cobra.Command, flags ResumeFlags) error {
	ctx := contextOf(cmd)
	path := a.pendingPath(flags.StateFile)

	pending, err := service.LoadPending(path)
	if err != nil {
		return err
	}

	svc, err := a.service()
	if err != nil {
		return err
	}

	res := service.Resolution{ManualOrder: normalizeOrder(flags.Order), Cancel: flags.Cancel}
	if !res.Cancel && len(res.ManualOrder) == 0 {
		if !a.interactive() {
			return fmt.Errorf("%w: pass --order or --cancel", domain.ErrPendingState)
		}
		a.renderConflicts(pending.Conflicts)
		order, err := promptOrder(ctx, pending)
		if err != nil {
			return err
		}
		res = service.Resolution{ManualOrder: order, Cancel: len(order) == 0}
	}

	outcome := svc.Resume(ctx, pending, res)

	// 只有終結狀態才刪除暫存
	switch outcome.(type) {
	case *service.Completed, *service.Cancelled:
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Get().Warn("failed to remove pending run", "path", path, "error", err)
		}
	}
	return a.finish(outcome)
}
