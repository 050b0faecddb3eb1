package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/discovery"
	"github.com/quantmind-br/tialoc/internal/loader"
	"github.com/quantmind-br/tialoc/internal/profile"
	"github.com/quantmind-br/tialoc/internal/resolver"
	"github.com/quantmind-br/tialoc/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// identityCacheSize bounds the managed-identity read cache. The derived
// search directories overlap heavily, so most files are read more than once
// per attempt without it.
const identityCacheSize = 512

// NewLoadCmd creates the load command
func NewLoadCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		folder         string
		skipProfile    bool
		nonInteractive bool
		noSave         bool
		jsonOutput     bool
		fastOnly       bool
		roots          []string
	)

	cmd := &cobra.Command{
		Use:   "load [folder]",
		Short: "Resolve and load the Openness module set",
		Long: `Pick an installation (saved profile, explicit folder, or a fresh scan),
derive its module search directories, prepare the process environment and
load the Siemens.Engineering modules in dependency order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fsys := afero.NewOsFs()
			m := manifestFor(cfg)

			if len(args) == 1 {
				folder = args[0]
			}

			chosen, err := pickInstallation(ctx, cfg, log, m, fsys, pickOptions{
				Folder:         folder,
				SkipProfile:    skipProfile,
				NonInteractive: nonInteractive,
				FastOnly:       fastOnly,
				Quiet:          jsonOutput,
				Roots:          roots,
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("folder", chosen.Folder).
				Str("quality", string(chosen.Quality)).
				Bool("multi_dir", chosen.MultiDir).
				Msg("starting load attempt")

			var reader resolver.IdentityReader = resolver.FileReader{Fs: fsys}
			if cached, err := resolver.NewCachedReader(fsys, reader, identityCacheSize); err == nil {
				reader = cached
			}
			indexer := resolver.NewIndexer(fsys, log, reader, m.ModuleExt)
			hook := resolver.NewHook(fsys, log)
			orch := loader.NewOrchestrator(fsys, log, m, indexer, hook, loader.VerifyLoader{Fs: fsys})

			report, loadErr := orch.Load(chosen.Folder)
			writeReport(log, cfg, "last_load.json", report)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				renderLoadReport(cmd, m, report, loadErr)
			}

			if loadErr != nil {
				log.Error().Err(loadErr).Msg("load attempt failed")
				return loadErr
			}

			if !noSave {
				if saveProfile(ctx, cfg, log, *chosen) && !jsonOutput {
					ui.PrintInfo("Profile saved for %s", chosen.Folder)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "", "use this installation folder, skip discovery")
	cmd.Flags().BoolVar(&skipProfile, "no-profile", false, "ignore the saved profile")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail when candidates tie")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not remember the chosen installation")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the load report in JSON format")
	cmd.Flags().BoolVar(&fastOnly, "fast", false, "probe conventional locations only, skip the deep walk")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "scan root (repeatable, overrides configuration)")

	return cmd
}

type pickOptions struct {
	Folder         string
	SkipProfile    bool
	NonInteractive bool
	FastOnly       bool
	Quiet          bool
	Roots          []string
}

// pickInstallation funnels the three selection sources in priority order:
// explicit folder, saved profile, fresh scan.
func pickInstallation(ctx context.Context, cfg *config.Config, log *zerolog.Logger, m *core.Manifest, fsys afero.Fs, opts pickOptions) (*core.Candidate, error) {
	if opts.Folder != "" {
		validator := discovery.NewValidator(fsys, log, m)
		c := validator.Validate(opts.Folder)
		if !c.IsValid() {
			ui.PrintError("%s is not a complete installation (%s)", opts.Folder, c.Reason())
			return nil, fmt.Errorf("folder %s: %w", opts.Folder, core.ErrNoCandidate)
		}
		ui.PrintInfo("Using %s", c.Folder)
		return &c, nil
	}

	if !opts.SkipProfile {
		if c := savedCandidate(ctx, cfg, log, fsys); c != nil {
			return c, nil
		}
	}

	return scanAndSelect(ctx, cfg, log, m, fsys, opts)
}

// savedCandidate loads the saved profile and re-verifies it on disk. Returns
// nil when there is no profile or it went stale, sending the caller back to
// a full scan.
func savedCandidate(ctx context.Context, cfg *config.Config, log *zerolog.Logger, fsys afero.Fs) *core.Candidate {
	store, err := profile.Open(ctx, cfg.Paths.DBFile)
	if err != nil {
		log.Warn().Err(err).Msg("profile store unavailable")
		return nil
	}
	defer store.Close()

	p, err := store.Current(ctx)
	if err != nil {
		if !errors.Is(err, profile.ErrNoProfile) {
			log.Warn().Err(err).Msg("cannot read saved profile")
		}
		return nil
	}

	for name, path := range p.Files {
		if path == "" {
			log.Warn().Str("module", name).Msg("saved profile incomplete, rescanning")
			return nil
		}
		if _, err := fsys.Stat(path); err != nil {
			ui.PrintWarning("Saved profile is stale (%s moved), rescanning", name)
			log.Warn().Str("module", name).Str("path", path).Msg("saved profile stale")
			return nil
		}
	}

	c := p.Candidate()
	ui.PrintInfo("Using saved profile: %s", c.Folder)
	log.Info().Int64("profile_id", p.ID).Str("folder", c.Folder).Msg("using saved profile")
	return &c
}

// scanAndSelect runs discovery and picks one result, prompting the user when
// the ranking cannot decide on its own.
func scanAndSelect(ctx context.Context, cfg *config.Config, log *zerolog.Logger, m *core.Manifest, fsys afero.Fs, opts pickOptions) (*core.Candidate, error) {
	universe := scanRoots(fsys, cfg, opts.Roots)

	var spinner *ui.ProgressBar
	var onFound func(core.Candidate)
	if !opts.Quiet {
		spinner, onFound = scanSpinner()
	}

	outcome := discoverInstallations(ctx, log, cfg, m, fsys, universe, opts.FastOnly, onFound)

	if spinner != nil {
		spinner.Finish()
		spinner.Clear()
	}

	if len(outcome.Valid) == 0 {
		if outcome.MultiDir != nil {
			ui.PrintWarning("No single directory is complete; using a multi-folder set anchored at %s", outcome.MultiDir.Folder)
			return outcome.MultiDir, nil
		}
		ui.PrintError("No usable installation found")
		printMissingSummary(m, outcome.All)
		return nil, core.ErrNoCandidate
	}

	best, err := outcome.Ranker.AutoSelect(outcome.Valid)
	if err == nil {
		ui.PrintInfo("Selected %s (%s)", best.Folder, best.Quality)
		return best, nil
	}

	var ambiguous *core.AmbiguousSelectionError
	if !errors.As(err, &ambiguous) {
		return nil, err
	}

	if opts.NonInteractive {
		ui.PrintError("%v", err)
		return nil, err
	}

	idx, promptErr := ui.SelectCandidate("Several equally ranked installations", candidateOptions(outcome.Ranker, ambiguous.Candidates))
	if promptErr != nil {
		return nil, NewExitError(core.ExitAmbiguous, promptErr)
	}
	return &ambiguous.Candidates[idx], nil
}

// renderLoadReport prints the human-readable outcome of a load attempt.
func renderLoadReport(cmd *cobra.Command, m *core.Manifest, report *core.LoadReport, loadErr error) {
	fmt.Println()
	if loadErr != nil {
		ui.PrintError("Load failed: %v", loadErr)
	}

	if report.PrimaryPath != "" {
		version := report.PrimaryVersion
		if version == "" {
			version = "unknown"
		}
		ui.PrintSuccess("Primary module ready")
		ui.PrintKeyValue("  Path", report.PrimaryPath)
		ui.PrintKeyValue("  Version", version)
	}
	ui.PrintKeyValue("  Search dirs", fmt.Sprintf("%d", len(report.SearchDirs)))

	names := make([]string, 0, len(m.Dependents)+1)
	names = append(names, strings.TrimSuffix(m.Primary(), m.ModuleExt))
	names = append(names, m.Dependents...)

	fmt.Println()
	table := tablewriter.NewTable(cmd.OutOrStdout(),
		tablewriter.WithHeader([]string{"Module", "Status", "Detail"}),
		tablewriter.WithAlignment(tw.MakeAlign(3, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
	)
	for _, name := range names {
		if path, ok := report.Loaded[name]; ok {
			table.Append(name, ui.Success.Sprint("loaded"), truncatePath(path, 60))
			continue
		}
		if reason, ok := report.Failed[name]; ok {
			table.Append(name, ui.Error.Sprint("failed"), reason)
		}
	}
	table.Render()
	fmt.Println()

	if report.PingOK {
		ui.PrintSuccess("Confirmation reload OK")
	} else if loadErr == nil {
		ui.PrintWarning("Confirmation reload failed; the primary module may be locked")
	}
}

// saveProfile remembers the chosen installation for the next run. Failures
// are logged, not fatal; the load already succeeded.
func saveProfile(ctx context.Context, cfg *config.Config, log *zerolog.Logger, c core.Candidate) bool {
	store, err := profile.Open(ctx, cfg.Paths.DBFile)
	if err != nil {
		log.Warn().Err(err).Msg("cannot open profile store, choice not saved")
		return false
	}
	defer store.Close()

	p := profile.FromCandidate(c)
	if err := store.Save(ctx, p); err != nil {
		log.Warn().Err(err).Msg("cannot save profile")
		return false
	}
	log.Info().Int64("profile_id", p.ID).Str("folder", c.Folder).Msg("profile saved")
	return true
}
