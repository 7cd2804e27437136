// Package cli is the command-line host for the merge service.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ning0612/ipmtool/internal/config"
	"github.com/Ning0612/ipmtool/internal/lock"
	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/service"
	"github.com/Ning0612/ipmtool/internal/state"
)

// Process exit codes
const (
	ExitOK         = 0
	ExitFailed     = 1
	ExitNeedsInput = 2
	ExitCancelled  = 3
)

// GlobalFlags holds the persistent flag values
type GlobalFlags struct {
	ConfigFile string
	JSON       bool
	Verbose    bool
	NoColor    bool
}

// App wires the cobra commands to the merge service
type App struct {
	flags GlobalFlags

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	history *state.Manager

	exitCode int
}

// New creates an App bound to the given streams
func New(in io.Reader, out, errOut io.Writer) *App {
	return &App{in: in, out: out, errOut: errOut}
}

// ExitCode is the code the process should exit with once Execute returned nil
func (a *App) ExitCode() int {
	return a.exitCode
}

// Command builds the root command
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "ipmtool",
		Short: "Merge KCD inventory preset mods into one archive",
		Long: `ipmtool scans a mods folder for .pak archives, extracts their InventoryPreset
tables, detects items the mods disagree on and writes one merged mod that
the game loads after all of them.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	root.PersistentFlags().StringVar(&a.flags.ConfigFile, "config", "", "config file (default is ./config.yaml or ~/.config/ipmtool/config.yaml)")
	root.PersistentFlags().BoolVar(&a.flags.JSON, "json", false, "print the result object as JSON")
	root.PersistentFlags().BoolVarP(&a.flags.Verbose, "verbose", "v", false, "log debug messages")
	root.PersistentFlags().BoolVar(&a.flags.NoColor, "no-color", false, "disable styled output")

	root.AddCommand(
		a.newMergeCommand(),
		a.newResumeCommand(),
		a.newConflictsCommand(),
		a.newModsCommand(),
		a.newHistoryCommand(),
		a.newUnlockCommand(),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.flags.ConfigFile)
	if err != nil {
		return err
	}
	if a.flags.Verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	if used := config.ConfigFileUsed(a.flags.ConfigFile); used != "" {
		logger.Get().Debug("loaded config", "path", used)
	}

	if cfg.History.Enabled {
		history, err := state.NewManager(cfg.HistoryDir())
		if err != nil {
			logger.Get().Warn("run history disabled", "error", err)
		} else {
			a.history = history
		}
	}
	return nil
}

func (a *App) teardown(*cobra.Command, []string) error {
	return a.Close()
}

// Close releases the history database and flushes the logger.
// cobra skips post-run hooks when a command fails, so main calls it too.
func (a *App) Close() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
		a.history = nil
	}
	errs = append(errs, logger.Shutdown())
	return errors.Join(errs...)
}

func (a *App) service() (*service.MergeService, error) {
	return service.NewMergeService(a.cfg, a.history)
}

// finish prints an outcome and sets the exit code.
// Failed outcomes are returned as errors unless JSON output was requested.
func (a *App) finish(outcome service.Outcome) error {
	if a.flags.JSON {
		if err := writeJSON(a.out, outcome.Response()); err != nil {
			return err
		}
	}

	switch o := outcome.(type) {
	case *service.Completed:
		a.exitCode = ExitOK
		if !a.flags.JSON {
			a.renderCompleted(o)
		}
	case *service.NeedsInput:
		a.exitCode = ExitNeedsInput
	case *service.Cancelled:
		a.exitCode = ExitCancelled
		if !a.flags.JSON {
			fmt.Fprintln(a.errOut, a.styles().warn.Render(service.MsgCancelled))
		}
	case *service.Failed:
		a.exitCode = ExitFailed
		if a.flags.JSON {
			return nil
		}
		a.renderSummary(o.Summary)
		if lock.IsLockError(o.Err) {
			fmt.Fprintln(a.errOut, a.styles().dim.Render(`Another merge is writing the output. If it crashed, run "ipmtool unlock <mods-dir>".`))
		}
		return o.Err
	}
	return nil
}

// interactive reports whether prompts can be shown
func (a *App) interactive() bool {
	if a.flags.JSON {
		return false
	}
	return isTerminal(a.in)
}

// isTerminal reports whether stream is an *os.File attached to a terminal.
// Character devices such as /dev/null are not terminals.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// pendingPath is where a paused run is saved when --state-file is not given
func (a *App) pendingPath(flag string) string {
	if flag != "" {
		return config.ExpandPath(flag)
	}
	return filepath.Join(a.cfg.HistoryDir(), "pending.yaml")
}
