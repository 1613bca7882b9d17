package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"buzzy/internal/logging"
	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

func newFetchCommand(a *app) *cobra.Command {
	var deps bool
	cmd := &cobra.Command{
		Use:   "fetch <recipe>...",
		Short: "Download and verify source archives",
		Long: `Download the source archives of the named recipes into the cache and check
their checksums. Git sources are cloned at build time and are skipped here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usererr.New("Must provide at least one recipe name")
			}
			s, err := a.open(cmd, true)
			if err != nil {
				return err
			}
			recipes, err := s.recipes(args)
			if err != nil {
				return err
			}
			if deps {
				if recipes, err = s.store.DependencyChain(args, recipe.BuildDepends); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, r := range recipes {
				paths, err := s.fetcher.Prefetch(cmd.Context(), r)
				if err != nil {
					return err
				}
				for _, src := range r.Sources {
					if g, ok := src.(*recipe.Git); ok {
						logging.Note("[%s] Skipping git source %s", r.Name, g.URL.Value)
					}
				}
				for _, path := range paths {
					fmt.Fprintln(out, path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deps, "deps", false, "Also fetch the sources of build dependencies")
	return cmd
}
