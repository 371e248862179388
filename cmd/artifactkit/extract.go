package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gobeaver/artifactkit/archive"
)

func newExtractCmd(g *globalFlags) *cobra.Command {
	var limits extractLimits

	cmd := &cobra.Command{
		Use:   "extract <archive> [target]",
		Short: "Safely unpack a local .zip, .tar, .tar.gz or .tgz archive",
		Long: `extract unpacks an archive into [target], by default a directory named
after the archive without its suffix. Entries that would land outside the
target are refused. The newest entry time is printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if !filepath.IsAbs(src) {
				src = filepath.Join(g.dir, src)
			}
			target := archive.DefaultTarget(src)
			if len(args) == 2 {
				target = args[1]
				if !filepath.IsAbs(target) {
					target = filepath.Join(g.dir, target)
				}
			}

			// extraction never needs a store, so only flags set limits
			res, err := archive.Extract(src, target, limits.options(cmd, nil)...)
			if err != nil {
				return err
			}
			log.Info().Str("target", res.TargetDir).Int("files", res.Files).Strs("skipped", res.Skipped).Msg("extracted archive")

			fmt.Fprintln(cmd.OutOrStdout(), res.TargetDir)
			if !res.LatestModTime.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), res.LatestModTime.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}

	limits.register(cmd)
	return cmd
}
