package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"buzzy/internal/recipe"
	"buzzy/internal/usererr"
)

func newDepsCommand(a *app) *cobra.Command {
	var buildDeps bool
	cmd := &cobra.Command{
		Use:   "deps <recipe>...",
		Short: "Print recipes in dependency order",
		Long: `Print the named recipes and everything they depend on, each once, with every
recipe after its dependencies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usererr.New("Must provide at least one recipe name")
			}
			s, err := a.open(cmd, true)
			if err != nil {
				return err
			}
			rel := recipe.Depends
			if buildDeps {
				rel = recipe.BuildDepends
			}
			chain, err := s.store.DependencyChain(args, rel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range chain {
				fmt.Fprintf(out, "%s %s\n", r.Name, r.FullVersion())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&buildDeps, "build", false, "Follow build dependencies instead of run-time ones")
	return cmd
}
