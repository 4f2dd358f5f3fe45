package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cleared-dev/payrecon/internal/buildinfo"
	"github.com/cleared-dev/payrecon/internal/config"
)

// rootOptions carries the global flags down to subcommands.
type rootOptions struct {
	configPath string
	v          *viper.Viper
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:     "payrecon",
		Short:   "Reconcile bank payments against clients",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.FileName, "path to the config file")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console, json)")
	_ = opts.v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = opts.v.BindPFlag("logging.format", pf.Lookup("log-format"))

	rootCmd.AddCommand(
		newInitCommand(),
		newImportCommand(opts),
		newMappingsCommand(opts),
		newServeCommand(opts),
	)

	return rootCmd
}
