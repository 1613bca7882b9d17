package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"buzzy/internal/env"
	"buzzy/internal/logging"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the environment and the detected OS backend",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(a, cmd)
		},
	}
}

func runInfo(a *app, cmd *cobra.Command) error {
	s, err := a.open(cmd, false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "buzzy %s\n\n", Version)

	version := strconv.Itoa(s.env.Version)
	if s.env.Version != env.Latest {
		version += fmt.Sprintf(` (latest is %d; run "buzzy configure")`, env.Latest)
	}
	mirror := "disabled"
	if s.env.MirrorEnabled() {
		mirror = s.env.MirrorBucket
		if s.env.MirrorEndpoint != "" {
			mirror += " at " + s.env.MirrorEndpoint
		}
	}

	logging.Info(out, "Environment", s.envDir+" version "+version)
	logging.Info(out, "Package DB", s.env.RecipeDatabase)
	logging.Info(out, "Build dir", s.env.BuildDir)
	logging.Info(out, "Repository", s.env.RepoName+" in "+s.env.RepoDir)
	logging.Info(out, "Packager", s.env.Packager())
	logging.Info(out, "Mirror", mirror)
	logging.Info(out, "OS", s.backend.Label())
	return nil
}
