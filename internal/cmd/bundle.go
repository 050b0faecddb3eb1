package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/quantmind-br/tialoc/internal/bundle"
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/loader"
	"github.com/quantmind-br/tialoc/internal/profile"
	"github.com/quantmind-br/tialoc/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// logTailBytes bounds how much of the rotated log lands in a bundle.
const logTailBytes = 256 * 1024

// NewBundleCmd creates the bundle command
func NewBundleCmd(cfg *config.Config, log *zerolog.Logger, version string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Write a support bundle for troubleshooting",
		Long: `Collect the environment report, the saved profile, the last scan and load
reports and the tail of the log into a single tar.xz archive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fsys := afero.NewOsFs()
			m := manifestFor(cfg)

			if output == "" {
				output = bundle.DefaultName(time.Now())
			}

			var p *profile.Profile
			store, err := profile.Open(ctx, cfg.Paths.DBFile)
			if err != nil {
				log.Warn().Err(err).Msg("profile store not included in bundle")
			} else {
				defer store.Close()
				if cur, err := store.Current(ctx); err == nil {
					p = cur
				}
			}

			entries := []bundle.Entry{
				{Name: "doctor.txt", Data: environmentReport(cfg, m, version, p)},
			}

			if tail, err := bundle.TailBytes(fsys, cfg.Paths.LogFile, logTailBytes); err == nil {
				entries = append(entries, bundle.Entry{Name: "tialoc.log", Data: tail})
			} else {
				log.Warn().Err(err).Str("path", cfg.Paths.LogFile).Msg("log file not included in bundle")
			}

			if p != nil {
				if data, err := json.MarshalIndent(p, "", "  "); err == nil {
					entries = append(entries, bundle.Entry{Name: "profile.json", Data: data})
				}
			}

			entries = append(entries,
				bundle.Entry{Name: "reports/last_scan.json", Source: reportPath(cfg, "last_scan.json")},
				bundle.Entry{Name: "reports/last_load.json", Source: reportPath(cfg, "last_load.json")},
			)

			builder := bundle.NewBuilder(fsys, log)
			bar := ui.NewProgressBarBytes(builder.TotalSize(entries), "Writing bundle")
			if err := builder.Write(output, entries, bar); err != nil {
				ui.PrintError("failed to write bundle: %v", err)
				return fmt.Errorf("write bundle: %w", err)
			}
			bar.Finish()
			fmt.Println()

			ui.PrintSuccess("Support bundle written to %s", output)
			ui.PrintInfo("Attach it when reporting a resolution problem: %s", m.SupportURL)
			log.Info().Str("path", output).Int("entries", len(entries)).Msg("bundle written")

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (defaults to tialoc-bundle-<timestamp>.tar.xz)")

	return cmd
}

// environmentReport renders the plain-text summary that opens every bundle.
// It repeats what doctor prints, minus the colors, so the archive stands on
// its own.
func environmentReport(cfg *config.Config, m *core.Manifest, version string, p *profile.Profile) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "tialoc %s\n", version)
	fmt.Fprintf(&b, "generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	b.WriteString("\n")
	fmt.Fprintf(&b, "data dir: %s\n", cfg.Paths.DataDir)
	fmt.Fprintf(&b, "profile db: %s\n", cfg.Paths.DBFile)
	fmt.Fprintf(&b, "log file: %s\n", cfg.Paths.LogFile)
	b.WriteString("\n")
	if p == nil {
		b.WriteString("profile: none\n")
	} else {
		fmt.Fprintf(&b, "profile folder: %s\n", p.Folder)
		fmt.Fprintf(&b, "profile primary: %s\n", p.PrimaryPath)
		fmt.Fprintf(&b, "profile version: %s\n", p.Version)
		if p.Token != "" {
			fmt.Fprintf(&b, "profile token: %s\n", p.Token)
		}
		fmt.Fprintf(&b, "profile quality: %s\n", p.Quality)
		fmt.Fprintf(&b, "profile saved: %s\n", p.SavedAt.Format(time.RFC3339))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "default install location: %s\n", loader.DefaultRoot(m))
	conflicts := pathConflicts(m.ConflictSuffix)
	fmt.Fprintf(&b, "conflicting PATH entries: %d\n", len(conflicts))
	for _, entry := range conflicts {
		fmt.Fprintf(&b, "  %s\n", entry)
	}
	return []byte(b.String())
}
