package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/discovery"
	"github.com/quantmind-br/tialoc/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// manifestFor returns the product manifest with configuration overrides applied.
func manifestFor(cfg *config.Config) *core.Manifest {
	m := core.TIAPortalV17()
	if len(cfg.Load.Locales) > 0 {
		m.Locales = cfg.Load.Locales
	}
	if cfg.Load.StripSuffix != "" {
		m.ConflictSuffix = cfg.Load.StripSuffix
	}
	return m
}

// scanRoots resolves the scan universe: command-line roots win, then the
// configuration, then the platform's fixed drives.
func scanRoots(fsys afero.Fs, cfg *config.Config, flagRoots []string) []string {
	if len(flagRoots) > 0 {
		return flagRoots
	}
	if len(cfg.Scan.Roots) > 0 {
		return cfg.Scan.Roots
	}
	return discovery.FixedRoots(fsys)
}

// scanOutcome is what one full discovery pass produces.
type scanOutcome struct {
	All      []core.Candidate // every emitted candidate, ranked
	Valid    []core.Candidate // complete candidates, ranked
	MultiDir *core.Candidate  // synthetic fallback, built only when Valid is empty
	Ranker   *discovery.Ranker
}

// discoverInstallations runs the scan, ranks what it finds, and falls back to
// the multi-directory synthesis when no single directory is complete.
func discoverInstallations(ctx context.Context, log *zerolog.Logger, cfg *config.Config, m *core.Manifest, fsys afero.Fs, roots []string, fastOnly bool, onFound func(core.Candidate)) *scanOutcome {
	engine := discovery.NewEngine(fsys, log, m, cfg.Scan.ExtraSkipDirs)
	engine.FastOnly = fastOnly || cfg.Scan.FastOnly

	var cands []core.Candidate
	for c := range engine.Scan(ctx, roots) {
		if onFound != nil {
			onFound(c)
		}
		cands = append(cands, c)
	}

	ranker := discovery.NewRanker(log, m)
	ranked := ranker.Rank(cands)

	valid := make([]core.Candidate, 0, len(ranked))
	for _, c := range ranked {
		if c.IsValid() {
			valid = append(valid, c)
		}
	}

	outcome := &scanOutcome{All: ranked, Valid: valid, Ranker: ranker}

	// A complete single directory always beats a stitched-together set, so
	// the synthesis only runs when nothing validated on its own.
	if len(valid) == 0 {
		validator := discovery.NewValidator(fsys, log, m)
		if merged, ok := discovery.BuildMultiDir(validator, cands); ok {
			outcome.MultiDir = &merged
		}
	}

	return outcome
}

// scanSpinner returns a scan progress spinner and its per-candidate update hook.
func scanSpinner() (*ui.ProgressBar, func(core.Candidate)) {
	spinner := ui.NewIndeterminateProgressBar("Scanning for installations")
	found := 0
	return spinner, func(core.Candidate) {
		found++
		spinner.Describe(fmt.Sprintf("Scanning for installations (%d candidates)", found))
		spinner.Add(1)
	}
}

// printCandidateTable renders ranked candidates with their scores.
func printCandidateTable(cmd *cobra.Command, ranker *discovery.Ranker, cands []core.Candidate) {
	table := tablewriter.NewTable(cmd.OutOrStdout(),
		tablewriter.WithHeader([]string{"Folder", "Quality", "Version", "Score", "Modified", "Note"}),
		tablewriter.WithAlignment(tw.MakeAlign(6, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
	)

	for _, c := range cands {
		version := c.Version
		if version == "" {
			version = "-"
		}
		note := c.Note
		if note == "" && !c.IsValid() {
			note = c.Reason()
		}

		table.Append(
			truncatePath(c.Folder, 48),
			ui.ColorizeQuality(string(c.Quality)),
			version,
			fmt.Sprintf("%d", ranker.Score(c)),
			c.LastModified.Format("2006-01-02 15:04"),
			note,
		)
	}

	table.Render()
}

// truncatePath shortens long folder paths for table display.
func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	return "..." + path[len(path)-(max-3):]
}

// printMissingSummary itemizes, per required file, where copies were seen, so
// a user can tell a truncated installation from an absent one.
func printMissingSummary(m *core.Manifest, cands []core.Candidate) {
	occurrences := discovery.CollectOccurrences(m, cands)

	ui.PrintSubheader("Required files")
	for _, name := range m.RequiredFiles {
		paths := occurrences[name]
		if len(paths) == 0 {
			fmt.Printf("  %s %s: MISSING\n", ui.CrossMark, name)
			continue
		}
		extra := ""
		if len(paths) > 1 {
			extra = fmt.Sprintf(" (+%d more)", len(paths)-1)
		}
		fmt.Printf("  %s %s: found at %s%s\n", ui.CheckMark, name, paths[0], extra)
	}
	fmt.Println()
	ui.PrintInfo("Reference: %s", m.SupportURL)
}

// candidateOptions converts candidates into selection prompt entries.
func candidateOptions(ranker *discovery.Ranker, cands []core.Candidate) []ui.CandidateOption {
	options := make([]ui.CandidateOption, 0, len(cands))
	for _, c := range cands {
		version := c.Version
		if version == "" {
			version = "unknown"
		}
		options = append(options, ui.CandidateOption{
			Folder:  c.Folder,
			Quality: string(c.Quality),
			Score:   ranker.Score(c),
			Detail:  fmt.Sprintf("version %s, modified %s", version, c.LastModified.Format("2006-01-02 15:04")),
		})
	}
	return options
}

// reportPath returns where a named report lives under the data dir.
func reportPath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Paths.DataDir, name)
}

// writeReport persists a JSON report for later support bundles. Failures are
// logged and swallowed; reports must never break the command that produced
// them.
func writeReport(log *zerolog.Logger, cfg *config.Config, name string, v interface{}) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", cfg.Paths.DataDir).Msg("cannot create data directory for report")
		return
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("report", name).Msg("cannot marshal report")
		return
	}

	path := reportPath(cfg, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Warn().Err(err).Str("report", name).Msg("cannot write report")
		return
	}

	log.Debug().Str("path", path).Msg("report written")
}
