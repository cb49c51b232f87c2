package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"libreg/internal/geo"
	"libreg/internal/geo/store"
)

func newPlacesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "places",
		Short: "Manage the gazetteer",
	}
	cmd.AddCommand(
		newPlacesImportCmd(opts),
		newPlacesResolveCmd(opts),
	)
	return cmd
}

func newPlacesImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a YAML gazetteer seed into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			nodes, err := store.ParseNodes(raw)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			pg, closeFn, err := opts.postgres(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := pg.Import(cmd.Context(), nodes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d places\n", n)
			return nil
		},
	}
}

func newPlacesResolveCmd(opts *globalOptions) *cobra.Command {
	var within, defaultNation string
	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Look up a place name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			r, closeFn, err := opts.resolver(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			scope, err := lookupNation(ctx, r, within)
			if err != nil {
				return err
			}
			fallback, err := lookupNation(ctx, r, defaultNation)
			if err != nil {
				return err
			}

			res, err := geo.ResolveWithDefault(ctx, r, args[0], scope, fallback)
			if err != nil {
				return err
			}
			if res.Outcome != geo.Found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], res.Outcome)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", res.Place.ID, res.Place.Type, res.Place.Label())
			return nil
		},
	}
	cmd.Flags().StringVar(&within, "within", "", "abbreviation of the nation to search inside")
	cmd.Flags().StringVar(&defaultNation, "default-nation", os.Getenv("REGISTRY_DEFAULT_NATION"),
		"nation to retry unscoped lookups in")
	return cmd
}
