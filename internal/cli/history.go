package cli

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ipmtool/internal/config"
	"github.com/Ning0612/ipmtool/internal/state"
)

func (a *App) newHistoryCommand() *cobra.Command {
	var (
		limit       int
		root        string
		lastSuccess bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent merge runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.history == nil {
				return errors.New("run history is disabled")
			}
			if lastSuccess && root == "" {
				return errors.New("--last-success requires --root")
			}

			var (
				runs []state.RunRecord
				err  error
			)
			if root != "" {
				abs, absErr := filepath.Abs(config.ExpandPath(root))
				if absErr != nil {
					return absErr
				}
				if lastSuccess {
					last, lastErr := a.history.GetLastSuccess(abs)
					if lastErr != nil {
						return lastErr
					}
					if last != nil {
						runs = []state.RunRecord{*last}
					}
				} else {
					runs, err = a.history.GetHistory(abs, limit)
				}
			} else {
				runs, err = a.history.GetAllHistory(limit)
			}
			if err != nil {
				return err
			}

			if a.flags.JSON {
				if runs == nil {
					runs = []state.RunRecord{}
				}
				return writeJSON(a.out, runs)
			}
			a.renderHistory(runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&root, "root", "", "only runs of this mods directory")
	cmd.Flags().BoolVar(&lastSuccess, "last-success", false, "only the latest successful run of --root")
	cmd.MarkFlagsMutuallyExclusive("last-success", "limit")
	return cmd
}
