package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/profilestore/internal/config"
)

// NewConfigCmd builds the `profilestore config` command group: operators
// use `config show` to print the fully-resolved, layered configuration
// (defaults < file < env, per internal/config.LayeredLoader) the server
// would run with, without having to start it.
func NewConfigCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective profilestore-server configuration",
	}

	// --config is registered on show's own FlagSet; the group only
	// rewrites that flag's help text here.
	var flags *pflag.FlagSet
	show := newConfigShowCmd()
	flags = show.Flags()
	flags.Lookup("config").Usage = "path to a YAML config file (optional; env and defaults apply regardless)"

	root.AddCommand(show)
	return root
}

func newConfigShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the fully-resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLayeredLoader().Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				cmd.PrintErrf("warning: configuration is invalid: %v\n", err)
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			cmd.Print(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}
