package cli

import (
	"github.com/spf13/cobra"

	"buzzy/internal/build"
	"buzzy/internal/usererr"
)

type forceFlags struct {
	force    bool
	forceAll bool
}

func (f *forceFlags) register(cmd *cobra.Command, what string) {
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "Force the named "+what+" to be rebuilt")
	cmd.Flags().BoolVar(&f.forceAll, "force-all", false, "Force every dependency to be rebuilt as well")
}

func newBuildCommand(a *app) *cobra.Command {
	var flags forceFlags
	cmd := &cobra.Command{
		Use:   "build <recipe>...",
		Short: "Build packages without installing them",
		Long: `Build every package of the named recipes. Build dependencies are built and
installed first; packages that are already built are skipped unless forced.`,
		Example: `  # Build a recipe, skipping it if its package exists
  buzzy build libfoo

  # Rebuild it, but not its dependencies
  buzzy build -f libfoo

  # Rebuild it and everything it needs
  buzzy build --force-all libfoo`,
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
			o := &build.Orchestrator{ForceAll: flags.forceAll, Log: s.log}
			for _, r := range recipes {
				if err := o.BuildRecipe(cmd.Context(), s.store, r, flags.force || flags.forceAll); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd, "recipes")
	return cmd
}

func newInstallCommand(a *app) *cobra.Command {
	var (
		flags forceFlags
		tag   string
	)
	cmd := &cobra.Command{
		Use:   "install <recipe>...",
		Short: "Build and install packages",
		Long: `Install the packages of the named recipes, together with their run-time
dependencies. Packages are built first when needed.`,
		Example: `  # Install the default packages of a recipe
  buzzy install libfoo

  # Install only its python2 variant
  buzzy install --tag python2 pyfoo`,
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
			o := &build.Orchestrator{ForceAll: flags.forceAll, Log: s.log}
			for _, r := range recipes {
				if err := o.InstallRecipe(cmd.Context(), s.store, r, tag, flags.force || flags.forceAll); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd, "recipes")
	cmd.Flags().StringVar(&tag, "tag", "", "Install the packages carrying this tag instead of the default ones")
	return cmd
}

func newUpdateCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Build and install every recipe in the database",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd, true)
			if err != nil {
				return err
			}
			o := &build.Orchestrator{ForceAll: force, Log: s.log}
			for name, err := range s.store.AllNames() {
				if err != nil {
					return err
				}
				r, err := s.store.Load(name)
				if err != nil {
					return err
				}
				if err := o.InstallRecipe(cmd.Context(), s.store, r, "", force); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Rebuild every package")
	return cmd
}
