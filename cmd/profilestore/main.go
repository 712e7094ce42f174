// Package main provides the profilestore operator CLI: query,
// debuginfo status, config, version, and ad hoc duckdb queries over
// persisted row-groups.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	profilestorecmd "github.com/coral-mesh/profilestore/cmd/profilestore/cmd"
	"github.com/coral-mesh/profilestore/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "profilestore",
		Short:         "Operator CLI for the continuous profiling backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(profilestorecmd.NewQueryCmd())
	rootCmd.AddCommand(profilestorecmd.NewDebuginfoCmd())
	rootCmd.AddCommand(profilestorecmd.NewConfigCmd())
	rootCmd.AddCommand(profilestorecmd.NewDuckDBCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("profilestore version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
