package cli

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/spf13/cobra"

	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [filter-regex]",
		Short: "List the recipes in the database",
		Example: `  # Every recipe
  buzzy list

  # Recipes whose name contains "lib"
  buzzy list lib`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usererr.New("Cannot provide more than one filter expression")
			}
			var filter *regexp.Regexp
			if len(args) == 1 {
				var err error
				if filter, err = regexp.Compile(args[0]); err != nil {
					return usererr.Errorf("invalid filter expression: %w", err)
				}
			}

			rec, err := a.loadEnv(true)
			if err != nil {
				return err
			}
			store, err := recipe.NewStore(rec.RecipeDatabase, nil, recipe.WithLogger(a.logger(cmd)))
			if err != nil {
				return err
			}
			var names []string
			for name, err := range store.AllNames() {
				if err != nil {
					return err
				}
				if filter == nil || filter.MatchString(name) {
					names = append(names, name)
				}
			}
			slices.Sort(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
