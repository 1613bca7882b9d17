package cli

import (
	"github.com/spf13/cobra"

	"buzzy/internal/logging"
)

func newConfigureCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Create or update the buzzy environment",
		Long: `Ask for every environment setting that is missing or was introduced since
the environment was last saved, and write the result to <env-dir>/env.yaml.`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.envStore()
			if err != nil {
				return err
			}
			rec, err := store.Update()
			if err != nil {
				return err
			}
			logging.Step("Environment version %d saved to %s", rec.Version, store.Path)
			return nil
		},
	}
}
