package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// scanReport is the persisted outcome of one scan, reused by support bundles.
type scanReport struct {
	Roots      []string         `json:"roots"`
	Candidates []core.Candidate `json:"candidates"`
	MultiDir   *core.Candidate  `json:"multi_dir,omitempty"`
}

// NewScanCmd creates the scan command
func NewScanCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		jsonOutput     bool
		fastOnly       bool
		roots          []string
		showAll        bool
		save           bool
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for Openness installations",
		Long: `Scan fixed drives (or configured roots) for directories that contain the
required Siemens.Engineering modules, then rank them by how strongly each
path corroborates a real installation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fsys := afero.NewOsFs()
			m := manifestFor(cfg)
			universe := scanRoots(fsys, cfg, roots)

			log.Info().
				Strs("roots", universe).
				Bool("fast_only", fastOnly).
				Msg("starting scan")

			var spinner *ui.ProgressBar
			var onFound func(core.Candidate)
			if !jsonOutput {
				spinner, onFound = scanSpinner()
			}

			outcome := discoverInstallations(ctx, log, cfg, m, fsys, universe, fastOnly, onFound)

			if spinner != nil {
				spinner.Finish()
				spinner.Clear()
			}

			report := scanReport{Roots: universe, Candidates: outcome.All, MultiDir: outcome.MultiDir}
			writeReport(log, cfg, "last_scan.json", report)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
				if len(outcome.Valid) == 0 && outcome.MultiDir == nil {
					return NewExitError(core.ExitNoInstall, core.ErrNoCandidate)
				}
				// A JSON pipe cannot prompt, so a scored tie stays unresolved.
				if save {
					switch {
					case len(outcome.Valid) > 0:
						best, err := outcome.Ranker.AutoSelect(outcome.Valid)
						if err != nil {
							return err
						}
						saveProfile(ctx, cfg, log, *best)
					case outcome.MultiDir != nil:
						saveProfile(ctx, cfg, log, *outcome.MultiDir)
					}
				}
				return nil
			}

			if len(outcome.All) == 0 {
				ui.PrintError("No candidate directories found")
				printMissingSummary(m, nil)
				return NewExitError(core.ExitNoInstall, core.ErrNoCandidate)
			}

			if len(outcome.Valid) > 0 {
				ui.PrintHeader(fmt.Sprintf("Complete installations: %d", len(outcome.Valid)))
				shown := outcome.Valid
				if showAll {
					shown = outcome.All
				}
				printCandidateTable(cmd, outcome.Ranker, shown)
				fmt.Println()

				best, err := outcome.Ranker.AutoSelect(outcome.Valid)
				var ambiguous *core.AmbiguousSelectionError
				switch {
				case err == nil:
					ui.PrintSuccess("Best candidate: %s (%s)", best.Folder, best.Quality)
				case errors.As(err, &ambiguous):
					if !save {
						ui.PrintWarning("Top candidates tie on score; `tialoc load` will ask which one to use")
						return nil
					}
					if nonInteractive {
						ui.PrintError("%v", err)
						return err
					}
					idx, promptErr := ui.SelectCandidate("Several equally ranked installations", candidateOptions(outcome.Ranker, ambiguous.Candidates))
					if promptErr != nil {
						return NewExitError(core.ExitAmbiguous, promptErr)
					}
					best = &ambiguous.Candidates[idx]
				}
				if save && best != nil {
					if saveProfile(ctx, cfg, log, *best) {
						ui.PrintInfo("Profile saved for %s", best.Folder)
					}
				}
				return nil
			}

			// Nothing complete in a single directory.
			if outcome.MultiDir != nil {
				ui.PrintWarning("No single directory holds every required module")
				ui.PrintInfo("Synthesized a multi-folder set anchored at %s", outcome.MultiDir.Folder)
				for _, name := range m.RequiredFiles {
					fmt.Printf("  %s %s: %s\n", ui.Bullet, name, outcome.MultiDir.RequiredFiles[name])
				}
				if showAll {
					fmt.Println()
					printCandidateTable(cmd, outcome.Ranker, outcome.All)
				}
				if save {
					if saveProfile(ctx, cfg, log, *outcome.MultiDir) {
						ui.PrintInfo("Profile saved for %s", outcome.MultiDir.Folder)
					}
				}
				return nil
			}

			ui.PrintError("No usable installation found")
			if showAll {
				printCandidateTable(cmd, outcome.Ranker, outcome.All)
				fmt.Println()
			}
			printMissingSummary(m, outcome.All)
			return NewExitError(core.ExitNoInstall, core.ErrNoCandidate)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.Flags().BoolVar(&fastOnly, "fast", false, "probe conventional locations only, skip the deep walk")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "scan root (repeatable, overrides configuration)")
	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "also show incomplete candidates")
	cmd.Flags().BoolVar(&save, "save", false, "remember the best candidate as the profile")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail when candidates tie")

	return cmd
}
