// Command registryctl is the operator tool for the library registry: it seeds
// the gazetteer and previews how coverage declarations resolve.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(filepath.Base(os.Args[0])).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(use string) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: "Library registry operator tool",
		Args:  cobra.NoArgs,
		// Errors are printed by main.
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"),
		"PostgreSQL URL of the registry database")
	cmd.PersistentFlags().StringVar(&opts.gazetteer, "gazetteer", os.Getenv("REGISTRY_GAZETTEER_PATH"),
		"YAML gazetteer to resolve against instead of the database")

	cmd.AddCommand(
		newCoverageCmd(opts),
		newPlacesCmd(opts),
	)
	return cmd
}
