package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/service"
)

type conflictsOutput struct {
	Conflicts   []domain.ConflictGroup `json:"conflicts"`
	ModDetails  []domain.ModDetail     `json:"modDetails"`
	Fingerprint string                 `json:"fingerprint"`
}

func (a *App) newConflictsCommand() *cobra.Command {
	var flags MergeFlags

	cmd := &cobra.Command{
		Use:   "conflicts <mods-dir>",
		Short: "List items the mods disagree on without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insp, err := a.inspect(cmd, args[0], flags)
			if err != nil {
				return err
			}

			if a.flags.JSON {
				conflicts := insp.Detection.Conflicts
				if conflicts == nil {
					conflicts = []domain.ConflictGroup{}
				}
				return writeJSON(a.out, conflictsOutput{
					Conflicts:   conflicts,
					ModDetails:  insp.ModDetails(),
					Fingerprint: insp.Fingerprint,
				})
			}
			a.renderConflicts(insp.Detection.Conflicts)
			a.renderModDetails(insp.ModDetails())
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Workshop, "workshop", "w", "", "workshop content folder scanned after the mods directory")
	return cmd
}

func (a *App) newModsCommand() *cobra.Command {
	var flags MergeFlags

	cmd := &cobra.Command{
		Use:   "mods <mods-dir>",
		Short: "Show the resolved mod ids, priorities and archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insp, err := a.inspect(cmd, args[0], flags)
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return writeJSON(a.out, insp.Packages)
			}
			a.renderPackages(insp.Packages)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Workshop, "workshop", "w", "", "workshop content folder scanned after the mods directory")
	return cmd
}

func (a *App) inspect(cmd *cobra.Command, root string, flags MergeFlags) (*service.Inspection, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}

	req := a.request(cmd, root, flags)
	bar := a.newProgress()
	req.Progress = bar
	defer bar.Finish()

	return svc.Inspect(contextOf(cmd), req)
}
