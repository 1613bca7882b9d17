// Package cli is the buzzy command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buzzy/internal/env"
	"buzzy/internal/executor"
	"buzzy/internal/logging"
	"buzzy/internal/publish"
	"buzzy/internal/usererr"

	// Backends register themselves.
	_ "buzzy/internal/distro/arch"
	_ "buzzy/internal/distro/local"
)

// Version is set at link time.
var Version = "dev"

// app carries the settings shared by every command. Tests replace the
// asker, the runner and the mirror client.
type app struct {
	v      *viper.Viper
	asker  env.Asker
	runner executor.Runner
	mirror publish.API
}

func newApp() *app {
	v := viper.New()
	v.SetEnvPrefix("buzzy")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("mirror-access-key")
	_ = v.BindEnv("mirror-secret-key")
	return &app{v: v}
}

// NewRootCommand creates the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buzzy",
		Short: "Build native packages from source recipes",
		Long: `buzzy reads recipes from a recipe database, resolves their dependencies
and drives the host's packaging tools to build and install them.

Without a command it prints the same summary as "buzzy info".`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(a, cmd)
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usererr.New(err.Error())
	})

	flags := rootCmd.PersistentFlags()
	flags.CountP("verbose", "v", "Output more detailed progress information (repeatable)")
	flags.StringP("package-database", "d", "", "Location of the recipe database")
	flags.String("env-dir", "", "Directory holding the environment file (default ~/.buzzy)")
	flags.String("backend", "", "OS backend to use (default: detect)")
	flags.String("root", "", "Install root of the local backend (default <env-dir>/root)")
	flags.Bool("nice", false, "Run build commands at the lowest CPU priority")
	for _, name := range []string{"verbose", "package-database", "env-dir", "backend", "root", "nice"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(newInfoCommand(a))
	rootCmd.AddCommand(newConfigureCommand(a))
	rootCmd.AddCommand(newBuildCommand(a))
	rootCmd.AddCommand(newInstallCommand(a))
	rootCmd.AddCommand(newUpdateCommand(a))
	rootCmd.AddCommand(newListCommand(a))
	rootCmd.AddCommand(newDepsCommand(a))
	rootCmd.AddCommand(newPkgbuildCommand(a))
	rootCmd.AddCommand(newFetchCommand(a))
	rootCmd.AddCommand(newPublishCommand(a))

	return rootCmd
}

// userArgs reports argument validation failures as user errors.
func userArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usererr.New(err.Error())
		}
		return nil
	}
}

// Execute runs the command line and returns the process exit code:
// 0 on success, 1 for user errors and 2 for anything unexpected.
func Execute() int {
	ctx, stop := notifyContext(context.Background())
	defer stop()

	rootCmd := NewRootCommand()
	return report(rootCmd.ErrOrStderr(), rootCmd.ExecuteContext(ctx))
}

func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if ue, ok := usererr.As(err); ok {
		logging.Error(w, err.Error(), ue.Detail)
		return 1
	}
	if errors.Is(err, context.Canceled) {
		logging.Error(w, "interrupted", "")
		return 1
	}
	fmt.Fprintln(w, color.Error.Sprintf("internal error: %v", err))
	return 2
}

// Main is the entry point of cmd/buzzy.
func Main() {
	os.Exit(Execute())
}
