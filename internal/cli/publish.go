package cli

import (
	"path"

	"github.com/spf13/cobra"

	"buzzy/internal/distro"
	"buzzy/internal/logging"
	"buzzy/internal/publish"
	"buzzy/internal/usererr"
)

func newPublishCommand(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "publish [recipe...]",
		Short: "Upload built packages to the mirror",
		Long: `Upload the package files of the named recipes to the S3-compatible mirror
configured in the environment. Files already on the mirror with the same size
are skipped. Credentials come from BUZZY_MIRROR_ACCESS_KEY and
BUZZY_MIRROR_SECRET_KEY, or from the usual AWS configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return usererr.New("Must provide at least one recipe name or --all")
			}
			s, err := a.open(cmd, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			names := args
			if all {
				names = nil
				for name, err := range s.store.AllNames() {
					if err != nil {
						return err
					}
					names = append(names, name)
				}
			}
			recipes, err := s.recipes(names)
			if err != nil {
				return err
			}

			prefix := path.Join(s.backend.Name(), distro.Machine())
			var mirror *publish.Mirror
			if a.mirror != nil && s.env.MirrorEnabled() {
				mirror = &publish.Mirror{Client: a.mirror, Bucket: s.env.MirrorBucket, Prefix: prefix, Log: s.log}
			} else {
				mirror, err = publish.New(ctx, s.env, publish.Credentials{
					AccessKey: a.v.GetString("mirror-access-key"),
					SecretKey: a.v.GetString("mirror-secret-key"),
				}, prefix, s.log)
				if err != nil {
					return err
				}
			}

			existing, err := mirror.Existing(ctx)
			if err != nil {
				return err
			}
			sent := 0
			for _, r := range recipes {
				pkgs, err := s.store.Packages(ctx, r)
				if err != nil {
					return err
				}
				for _, pkg := range pkgs {
					if pkg.Native {
						continue
					}
					archiver, ok := pkg.Artifact.(distro.Archiver)
					if !ok {
						return usererr.Errorf("the %s backend does not produce package files", s.backend.Name())
					}
					uploaded, err := mirror.Upload(ctx, archiver.ArchivePath(), existing)
					if err != nil {
						return usererr.Wrap(err, pkg.FullName())
					}
					if uploaded {
						sent++
					}
				}
			}
			logging.Step("%d package(s) uploaded", sent)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Publish every recipe in the database")
	return cmd
}
