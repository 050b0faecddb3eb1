package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/discovery"
	"github.com/quantmind-br/tialoc/internal/profile"
	"github.com/quantmind-br/tialoc/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewProfileCmd creates the profile command group
func NewProfileCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the remembered installation",
		Long: `Inspect, pin, or forget the installation profile that load uses to skip
rescanning on every start.`,
	}

	cmd.AddCommand(newProfileShowCmd(cfg, log))
	cmd.AddCommand(newProfileSetCmd(cfg, log))
	cmd.AddCommand(newProfileHistoryCmd(cfg, log))
	cmd.AddCommand(newProfileClearCmd(cfg, log))

	return cmd
}

func newProfileShowCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := profile.Open(ctx, cfg.Paths.DBFile)
			if err != nil {
				ui.PrintError("failed to open profile store: %v", err)
				return fmt.Errorf("open profile store: %w", err)
			}
			defer store.Close()

			p, err := store.Current(ctx)
			if err != nil {
				if errors.Is(err, profile.ErrNoProfile) {
					ui.PrintInfo("No profile saved yet; run `tialoc load` or `tialoc profile set <folder>`")
					return nil
				}
				return fmt.Errorf("read profile: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}

			ui.PrintHeader("Saved Profile")
			ui.PrintKeyValue("Folder", p.Folder)
			ui.PrintKeyValue("Primary", p.PrimaryPath)
			version := p.Version
			if version == "" {
				version = "unknown"
			}
			ui.PrintKeyValue("Version", version)
			if p.Token != "" {
				ui.PrintKeyValue("Token", p.Token)
			}
			ui.PrintKeyValue("Quality", ui.ColorizeQuality(p.Quality))
			if p.MultiDir {
				ui.PrintKeyValue("Layout", "multi-folder")
			}
			if p.Note != "" {
				ui.PrintKeyValue("Note", p.Note)
			}
			ui.PrintKeyValue("Saved at", p.SavedAt.Format("2006-01-02 15:04:05"))
			verified := "never"
			if !p.LastVerified.IsZero() {
				verified = p.LastVerified.Format("2006-01-02 15:04:05")
			}
			ui.PrintKeyValue("Verified", verified)

			fmt.Println()
			m := manifestFor(cfg)
			for _, name := range m.RequiredFiles {
				fmt.Printf("  %s %s\n", ui.Bullet, p.Files[name])
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func newProfileSetCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [folder]",
		Short: "Pin an installation folder as the profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			folder := ""
			if len(args) == 1 {
				folder = args[0]
			} else {
				var err error
				folder, err = ui.InputPrompt("Installation folder", "", ui.ValidateNonEmpty)
				if err != nil {
					return err
				}
			}

			fsys := afero.NewOsFs()
			m := manifestFor(cfg)
			validator := discovery.NewValidator(fsys, log, m)

			c := validator.Validate(folder)
			if !c.IsValid() {
				ui.PrintError("%s is not a complete installation (%s)", folder, c.Reason())
				return fmt.Errorf("folder %s: %w", folder, core.ErrNoCandidate)
			}

			store, err := profile.Open(ctx, cfg.Paths.DBFile)
			if err != nil {
				ui.PrintError("failed to open profile store: %v", err)
				return fmt.Errorf("open profile store: %w", err)
			}
			defer store.Close()

			p := profile.FromCandidate(c)
			if err := store.Save(ctx, p); err != nil {
				ui.PrintError("failed to save profile: %v", err)
				return fmt.Errorf("save profile: %w", err)
			}

			ui.PrintSuccess("Profile saved")
			ui.PrintKeyValue("Folder", c.Folder)
			ui.PrintKeyValue("Quality", ui.ColorizeQuality(string(c.Quality)))
			log.Info().Int64("profile_id", p.ID).Str("folder", c.Folder).Msg("profile pinned")

			return nil
		},
	}

	return cmd
}

func newProfileHistoryCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously saved profiles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := profile.Open(ctx, cfg.Paths.DBFile)
			if err != nil {
				ui.PrintError("failed to open profile store: %v", err)
				return fmt.Errorf("open profile store: %w", err)
			}
			defer store.Close()

			history, err := store.History(ctx, limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if len(history) == 0 {
				ui.PrintInfo("No profiles saved yet")
				return nil
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"ID", "Folder", "Quality", "Saved", "Verified"}),
				tablewriter.WithAlignment(tw.MakeAlign(5, tw.AlignLeft)),
				tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
			)
			for _, p := range history {
				verified := "-"
				if !p.LastVerified.IsZero() {
					verified = p.LastVerified.Format("2006-01-02 15:04")
				}
				table.Append(
					fmt.Sprintf("%d", p.ID),
					truncatePath(p.Folder, 48),
					ui.ColorizeQuality(p.Quality),
					p.SavedAt.Format("2006-01-02 15:04"),
					verified,
				)
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries to show, 0 for all")

	return cmd
}

func newProfileClearCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget all saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !yes {
				confirmed, err := ui.ConfirmPrompt("Forget all saved profiles")
				if err != nil || !confirmed {
					ui.PrintInfo("Nothing cleared")
					return nil
				}
			}

			store, err := profile.Open(ctx, cfg.Paths.DBFile)
			if err != nil {
				ui.PrintError("failed to open profile store: %v", err)
				return fmt.Errorf("open profile store: %w", err)
			}
			defer store.Close()

			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("clear profiles: %w", err)
			}

			ui.PrintSuccess("Profiles cleared")
			log.Info().Msg("profile store cleared")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}
