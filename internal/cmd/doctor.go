package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/loader"
	"github.com/quantmind-br/tialoc/internal/profile"
	"github.com/quantmind-br/tialoc/internal/ui"
	"github.com/quantmind-br/tialoc/internal/versioninfo"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewDoctorCmd creates the doctor command
func NewDoctorCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and the saved profile",
		Long: `Check directory access, the saved installation profile, the process
environment and the conventional install locations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fsys := afero.NewOsFs()
			m := manifestFor(cfg)

			ui.PrintHeader("Environment Diagnostics")
			fmt.Println()

			var issues []string
			var warnings []string

			// 1. Check directory structure
			ui.PrintSubheader("Directory Structure")
			dirs := []struct {
				path string
				name string
			}{
				{cfg.Paths.DataDir, "Data directory"},
				{filepath.Dir(cfg.Paths.DBFile), "Profile directory"},
				{filepath.Dir(cfg.Paths.LogFile), "Log directory"},
			}

			for _, dir := range dirs {
				if checkDirectory(dir.path) {
					ui.PrintSuccess("%s: %s", dir.name, dir.path)
				} else {
					ui.PrintError("%s: NOT ACCESSIBLE (%s)", dir.name, dir.path)
					issues = append(issues, fmt.Sprintf("Directory not accessible: %s", dir.path))
				}
			}

			fmt.Println()

			// 2. Check the saved profile
			ui.PrintSubheader("Saved Profile")
			store, err := profile.Open(ctx, cfg.Paths.DBFile)
			if err != nil {
				ui.PrintError("Profile store: NOT ACCESSIBLE")
				issues = append(issues, fmt.Sprintf("Cannot open profile store: %v", err))
			} else {
				defer store.Close()
				ui.PrintSuccess("Profile store: accessible (%s)", cfg.Paths.DBFile)

				p, err := store.Current(ctx)
				switch {
				case errors.Is(err, profile.ErrNoProfile):
					ui.PrintInfo("No profile saved; the next load scans from scratch")
				case err != nil:
					ui.PrintWarning("Cannot read profile: %v", err)
					warnings = append(warnings, "Cannot read saved profile")
				default:
					ui.PrintInfo("Profile: %s (saved %s)", p.Folder, p.SavedAt.Format("2006-01-02"))
					stale := false
					for _, name := range m.RequiredFiles {
						path := p.Files[name]
						if path == "" {
							ui.PrintError("%s: not recorded", name)
							stale = true
							continue
						}
						if _, err := fsys.Stat(path); err != nil {
							ui.PrintError("%s: missing (%s)", name, path)
							stale = true
							continue
						}
						ui.PrintSuccess("%s: present", name)
					}

					if stale {
						issues = append(issues, "Saved profile points at files that no longer exist; run `tialoc load` to rescan")
					} else {
						checkVersionDrift(fsys, p, &warnings)
						if err := store.Touch(ctx, p.ID); err != nil {
							log.Warn().Err(err).Msg("failed to record verification time")
						}
					}

					if verbose && !stale {
						fmt.Println()
						ui.PrintInfo("Search directories a load would use:")
						for _, dir := range loader.DeriveSearchDirs(fsys, m, p.Folder) {
							fmt.Printf("  %s %s\n", ui.Bullet, dir)
						}
					}
				}
			}

			fmt.Println()

			// 3. Check environment
			ui.PrintSubheader("Environment")
			ui.PrintInfo("Platform: %s/%s", runtime.GOOS, runtime.GOARCH)
			envVars := []struct {
				name   string
				needed bool
			}{
				{"ProgramW6432", false},
				{"ProgramFiles", false},
			}

			for _, env := range envVars {
				value := os.Getenv(env.name)
				if value != "" {
					ui.PrintSuccess("%s: %s", env.name, value)
				} else {
					ui.PrintInfo("%s: not set (using defaults)", env.name)
				}
			}

			conflicts := pathConflicts(m.ConflictSuffix)
			if len(conflicts) > 0 {
				ui.PrintWarning("%d PATH entries end in %q:", len(conflicts), m.ConflictSuffix)
				ui.PrintList(conflicts)
				warnings = append(warnings, fmt.Sprintf("%d conflicting PATH entries (stripped automatically before loading)", len(conflicts)))
			} else {
				ui.PrintSuccess("PATH: no conflicting entries")
			}

			fmt.Println()

			// 4. Check canonical install locations
			ui.PrintSubheader("Canonical Locations")
			defaultRoot := loader.DefaultRoot(m)
			if info, err := fsys.Stat(defaultRoot); err == nil && info.IsDir() {
				ui.PrintSuccess("Default install location: %s", defaultRoot)
			} else {
				ui.PrintInfo("Default install location not present (%s)", defaultRoot)
			}

			roots := scanRoots(fsys, cfg, nil)
			hits := 0
			for _, root := range roots {
				for _, probe := range m.FastProbes {
					dir := filepath.Join(root, filepath.FromSlash(probe))
					if info, err := fsys.Stat(dir); err == nil && info.IsDir() {
						ui.PrintSuccess("Probe hit: %s", dir)
						hits++
					}
				}
			}
			if hits == 0 {
				ui.PrintInfo("No conventional location answered; a full scan walks %d roots", len(roots))
			}

			fmt.Println()

			// Summary
			ui.PrintHeader("Summary")
			fmt.Println()

			if len(issues) == 0 {
				ui.PrintSuccess("All critical checks passed!")
			} else {
				ui.PrintError("Found %d issue(s):", len(issues))
				ui.PrintList(issues)
				fmt.Println()
			}

			if len(warnings) > 0 {
				ui.PrintWarning("Found %d warning(s):", len(warnings))
				ui.PrintList(warnings)
			}

			fmt.Println()

			if len(issues) > 0 {
				return fmt.Errorf("environment check failed with %d issue(s)", len(issues))
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output with derived search directories")

	return cmd
}

// checkDirectory checks if a directory exists and is writable
func checkDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Try to create if it doesn't exist
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return false
			}
			return true
		}
		return false
	}

	if !info.IsDir() {
		return false
	}

	// Check if writable
	testFile := filepath.Join(path, ".tialoc-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return false
	}
	os.Remove(testFile)

	return true
}

// checkVersionDrift compares the recorded primary version against a fresh
// read of the file. A lower version on disk usually means a vendor uninstall
// left an older copy behind.
func checkVersionDrift(fsys afero.Fs, p *profile.Profile, warnings *[]string) {
	fresh, err := versioninfo.Read(fsys, p.PrimaryPath)
	if err != nil || fresh == "" || p.Version == "" {
		return
	}
	if fresh == p.Version {
		ui.PrintSuccess("Primary version unchanged (%s)", p.Version)
		return
	}

	storedV, err1 := goversion.NewVersion(p.Version)
	freshV, err2 := goversion.NewVersion(fresh)
	if err1 == nil && err2 == nil && freshV.LessThan(storedV) {
		ui.PrintWarning("Primary version went backwards (%s -> %s)", p.Version, fresh)
		*warnings = append(*warnings, fmt.Sprintf("Primary module downgraded from %s to %s; rescan before trusting the profile", p.Version, fresh))
		return
	}

	ui.PrintInfo("Primary version changed (%s -> %s)", p.Version, fresh)
}

// pathConflicts returns PATH entries whose canonical form ends with the
// conflict suffix.
func pathConflicts(suffix string) []string {
	if suffix == "" {
		return nil
	}
	want := "/" + strings.ToLower(suffix)
	var out []string
	for _, entry := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		if strings.HasSuffix(core.PathKey(entry), want) {
			out = append(out, entry)
		}
	}
	return out
}
