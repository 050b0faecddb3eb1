package cmd

import (
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd(cfg *config.Config, log *zerolog.Logger, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tialoc",
		Short: "TIA Portal Openness runtime locator",
		Long: `Locates an installed TIA Portal Openness runtime, validates it against the
required module set, and prepares a deterministic load environment for the
Siemens.Engineering assemblies.`,
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewScanCmd(cfg, log))
	cmd.AddCommand(NewLoadCmd(cfg, log))
	cmd.AddCommand(NewDoctorCmd(cfg, log))
	cmd.AddCommand(NewProfileCmd(cfg, log))
	cmd.AddCommand(NewBundleCmd(cfg, log, version))
	cmd.AddCommand(NewCompletionCmd(cfg, log))
	cmd.AddCommand(NewVersionCmd(version))

	return cmd
}
