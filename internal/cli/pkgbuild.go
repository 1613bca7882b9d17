package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"buzzy/internal/logging"
)

func newPkgbuildCommand(a *app) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "pkgbuild <recipe>",
		Short: "Print the packaging descriptor of a recipe",
		Long: `Render the packaging descriptor (a PKGBUILD on Arch) that building the
recipe would write, without building anything.`,
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd, true)
			if err != nil {
				return err
			}
			r, err := s.store.Load(args[0])
			if err != nil {
				return err
			}
			pkgs, err := s.store.PackagesWithTag(cmd.Context(), r, tag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, pkg := range pkgs {
				if pkg.Native {
					logging.Note("%s is provided by the OS", pkg.Name)
					continue
				}
				doc, err := s.backend.Descriptor(pkg)
				if err != nil {
					return err
				}
				if len(pkgs) > 1 {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "# %s\n", pkg.FullName())
				}
				if _, err := doc.WriteTo(out); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Render the packages carrying this tag instead of the default ones")
	return cmd
}
