package names

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	namedb "github.com/frigate-speciesid/speciesid/internal/names"
)

// Command creates the command group that manages the common name database.
func Command(settings *conf.Settings) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "names",
		Short: "Manage the common name database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "database", "", "Name database path (default from classification.name_database)")

	open := func() (*namedb.Resolver, error) {
		path := dbPath
		if path == "" {
			path = settings.Classification.NameDatabase
		}
		if path == "" {
			return nil, errors.Newf("no name database configured").
				Component("cmd").
				Category(errors.CategoryConfiguration).
				Build()
		}
		return namedb.Open(path)
	}

	cmd.AddCommand(importCommand(open), lookupCommand(open))
	return cmd
}

func importCommand(open func() (*namedb.Resolver, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import scientific_name,common_name rows",
		Long:  "Import a CSV of scientific_name,common_name rows. Existing names are replaced.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.New(err).
					Component("cmd").
					Category(errors.CategoryFileIO).
					Context("path", args[0]).
					Build()
			}
			defer f.Close()

			resolver, err := open()
			if err != nil {
				return err
			}
			defer resolver.Close()

			n, err := resolver.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			total, err := resolver.Count(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d names, %d in database\n", n, total)
			return err
		},
	}
}

func lookupCommand(open func() (*namedb.Resolver, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <scientific name>...",
		Short: "Print the common name for scientific names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := open()
			if err != nil {
				return err
			}
			defer resolver.Close()

			for _, name := range args {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, resolver.Display(cmd.Context(), name)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
