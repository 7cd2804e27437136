package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ipmtool/internal/config"
	"github.com/Ning0612/ipmtool/internal/lock"
	"github.com/Ning0612/ipmtool/internal/logger"
)

// unlockOutput is the --json shape of the unlock command
type unlockOutput struct {
	Path    string         `json:"path"`
	Holder  *lock.LockInfo `json:"holder,omitempty"`
	Removed bool           `json:"removed"`
}

func (a *App) newUnlockCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock <mods-dir>",
		Short: "Show or remove the output folder lock",
		Long: `Show who holds the lock on the output folder. A lock left by a process
that is no longer running is removed; --force removes a live one too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(config.ExpandPath(args[0]), a.cfg.Paths.OutputFolder)
			fileLock, err := lock.NewFileLock(dir)
			if err != nil {
				return err
			}
			fileLock.SetStaleTimeout(a.cfg.Merge.LockStaleTimeout)

			out := unlockOutput{Path: fileLock.Path()}
			holder, holderErr := fileLock.Holder()
			switch {
			case errors.Is(holderErr, fs.ErrNotExist):
				// 沒有鎖檔
			case holderErr == nil && !force:
				out.Holder = holder
			default:
				if err := fileLock.ForceRelease(); err != nil {
					return err
				}
				out.Holder, out.Removed = holder, true
				logger.Get().Info("removed output lock", "path", out.Path, "forced", holderErr == nil)
			}

			if a.flags.JSON {
				return writeJSON(a.out, out)
			}
			a.renderUnlock(out)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove the lock even when its holder is running")
	return cmd
}

func (a *App) renderUnlock(out unlockOutput) {
	s := a.styles()
	switch {
	case out.Removed:
		fmt.Fprintln(a.out, s.ok.Render("Removed "+out.Path))
	case out.Holder != nil:
		h := out.Holder
		fmt.Fprintln(a.out, s.warn.Render("Locked"), fmt.Sprintf("by PID %d on %s since %s (%s)",
			h.PID, h.Hostname, h.StartTime.Format(time.DateTime), dash(h.Operation)))
		fmt.Fprintln(a.out, s.dim.Render("Use --force to remove it."))
	default:
		fmt.Fprintln(a.out, s.ok.Render("Not locked"))
	}
}
