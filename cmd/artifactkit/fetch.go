package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gobeaver/artifactkit"
	"github.com/gobeaver/artifactkit/archive"
	"github.com/gobeaver/artifactkit/internal/logging"
)

func newFetchCmd(g *globalFlags) *cobra.Command {
	var (
		metadataFile string
		extract      bool
		extractTo    string
		include      []string
		limits       extractLimits
	)

	cmd := &cobra.Command{
		Use:   "fetch [location]",
		Short: "Download an artifact from the store into the working directory",
		Long: `fetch downloads the artifact at [location], or at the Location recorded
in the metadata file written by publish. Archives (.zip, .tar, .tar.gz, .tgz)
can be unpacked next to the download with --extract.`,
		Example: `  artifactkit fetch android/1042/app.aab
  artifactkit fetch --metadata artifact.json --extract`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := artifactkit.FetchRequest{WorkingDir: g.dir}
			switch {
			case len(args) == 1:
				req.Location = args[0]
			case metadataFile != "":
				data, err := os.ReadFile(metadataFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &req.Metadata); err != nil {
					return fmt.Errorf("parse %s: %w", metadataFile, err)
				}
			default:
				return errors.New("either a location or --metadata is required")
			}

			store, cfg, err := g.openStore()
			if err != nil {
				return err
			}

			var opts []artifactkit.FetchOption
			if extractTo != "" {
				opts = append(opts, artifactkit.WithExtractTo(extractTo))
			} else if extract {
				opts = append(opts, artifactkit.WithExtract(true))
			}
			if len(include) > 0 {
				opts = append(opts, artifactkit.WithInclude(include...))
			}
			opts = append(opts, artifactkit.WithExtractOptions(limits.options(cmd, cfg)...))

			done := logging.LogOperationStart(logging.GetLogger("fetch"), "fetch")
			res, err := artifactkit.Fetch(logging.WithContext(cmd.Context()), store, req, opts...)
			if err != nil {
				return err
			}
			done()

			fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			if res.ExtractedTo != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.ExtractedTo)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metadataFile, "metadata", "", "Read the location from a metadata JSON file")
	cmd.Flags().BoolVarP(&extract, "extract", "x", false, "Unpack the fetched archive next to it")
	cmd.Flags().StringVar(&extractTo, "extract-to", "", "Unpack the fetched archive into this directory")
	cmd.Flags().StringSliceVar(&include, "include", nil, "Only download matching files of a directory artifact (glob, repeatable)")
	limits.register(cmd)
	return cmd
}

// extractLimits holds the --max-* flags shared by fetch and extract.
type extractLimits struct {
	maxFiles    int
	maxSize     int64
	maxFileSize int64
}

func (l *extractLimits) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&l.maxFiles, "max-files", 0, "Refuse archives with more entries (0 = no limit)")
	cmd.Flags().Int64Var(&l.maxSize, "max-size", 0, "Refuse archives that unpack to more bytes (0 = no limit)")
	cmd.Flags().Int64Var(&l.maxFileSize, "max-file-size", 0, "Refuse entries larger than this (0 = no limit)")
}

// options merges the configured limits with flags given on the command line.
func (l *extractLimits) options(cmd *cobra.Command, cfg *artifactkit.Config) []archive.Option {
	var opts []archive.Option
	if cfg != nil {
		opts = cfg.ExtractOptions()
	}
	if cmd.Flags().Changed("max-files") {
		opts = append(opts, archive.WithMaxFiles(l.maxFiles))
	}
	if cmd.Flags().Changed("max-size") {
		opts = append(opts, archive.WithMaxSize(l.maxSize))
	}
	if cmd.Flags().Changed("max-file-size") {
		opts = append(opts, archive.WithMaxFileSize(l.maxFileSize))
	}
	return opts
}
