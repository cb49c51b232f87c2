package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"libreg/internal/geo/coverage"
)

func newCoverageCmd(opts *globalOptions) *cobra.Command {
	var defaultNation string
	cmd := &cobra.Command{
		Use:   "coverage [file]",
		Short: "Resolve a coverage declaration and print the result",
		Long: `Resolve a service_area or focus_area declaration as it would appear in an
authentication document. The declaration is read from file, or from stdin
when no file is given.`,
		Example: `  registryctl coverage --gazetteer places.yaml <<< '{"US": ["Boston, MA"]}'`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			declaration, err := coverage.Decode(raw)
			if err != nil {
				return fmt.Errorf("decode declaration: %w", err)
			}
			cmd.SilenceUsage = true

			ctx := cmd.Context()
			r, closeFn, err := opts.resolver(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			nation, err := lookupNation(ctx, r, defaultNation)
			if err != nil {
				return err
			}

			result, err := coverage.Parse(ctx, r, declaration, nation)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&defaultNation, "default-nation", os.Getenv("REGISTRY_DEFAULT_NATION"),
		"abbreviation of the nation bare place names fall back to")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
