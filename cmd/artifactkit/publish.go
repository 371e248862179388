package main

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gobeaver/artifactkit"
	"github.com/gobeaver/artifactkit/internal/logging"
)

func newPublishCmd(g *globalFlags) *cobra.Command {
	var (
		params       []string
		excludes     []string
		concurrency  int
		metadataOut  string
		skipExisting bool
	)

	cmd := &cobra.Command{
		Use:   "publish <source> [target]",
		Short: "Upload the files a pattern matches to the artifact store",
		Long: `publish resolves <source> under the working directory and uploads every
match to the store path given by [target]. $1..$N in the target refer to the
wildcards of the source, $NAME or ${NAME} to --param values. Without a target
the matches keep their relative paths.

The artifact metadata ({"Location": ...}) is printed to stdout.`,
		Example: `  artifactkit publish 'build/outputs/%.aab' 'android/$BUILD/$1.aab' -p BUILD=1042
  artifactkit publish site 'docs/$BUILD' -p BUILD=7 --exclude '**/*.map'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				if err := checkParams(args[1], values); err != nil {
					return err
				}
			}

			store, cfg, err := g.openStore()
			if err != nil {
				return err
			}

			req := artifactkit.PublishRequest{
				Source:     args[0],
				WorkingDir: g.dir,
				Params:     values,
			}
			if len(args) == 2 {
				req.Target = args[1]
			}

			skip := !cfg.DefaultOverwrite
			if cmd.Flags().Changed("skip-existing") {
				skip = skipExisting
			}

			opts := []artifactkit.PublishOption{
				artifactkit.WithSkipExisting(skip),
				artifactkit.WithConcurrency(concurrency),
			}
			if len(excludes) > 0 {
				opts = append(opts, artifactkit.WithExclude(excludes...))
			}
			if g.verbosity >= 2 {
				opts = append(opts, artifactkit.WithProgress(func(path string, done, total int64) {
					log.Trace().Str("destination", path).Int64("bytes", done).Int64("total", total).Msg("upload progress")
				}))
			}

			done := logging.LogOperationStart(logging.GetLogger("publish"), "publish")
			res, err := artifactkit.Publish(logging.WithContext(cmd.Context()), store, req, opts...)
			if err != nil {
				return err
			}
			done()

			data, err := json.MarshalIndent(res.Metadata(), "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if metadataOut != "" {
				if err := os.WriteFile(metadataOut, data, 0o644); err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Named placeholder value, KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "Glob of relative paths to leave out (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of files uploaded at once")
	cmd.Flags().StringVar(&metadataOut, "metadata-out", "", "Also write the artifact metadata JSON to this file")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Leave files that already exist in the store untouched (default from BEAVER_ARTIFACTKIT_DEFAULT_OVERWRITE)")
	return cmd
}
