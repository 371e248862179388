package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobeaver/artifactkit"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		recursive bool
		long      bool
		maxDepth  int
		patterns  []string
	)

	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List files in the store",
		Example: `  artifactkit ls android/1042
  artifactkit ls -r --match '*.apk' android`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			var sels []artifactkit.FileSelector
			for _, p := range patterns {
				sel, err := artifactkit.Glob(p)
				if err != nil {
					return err
				}
				sels = append(sels, sel)
			}
			var selector artifactkit.FileSelector = artifactkit.All()
			if len(sels) > 0 {
				selector = artifactkit.Or(sels...)
			}
			if maxDepth > 0 {
				selector = artifactkit.And(selector, artifactkit.Depth(maxDepth, dir))
			}

			store, _, err := g.openStore()
			if err != nil {
				return err
			}
			files, err := artifactkit.ListWithSelector(cmd.Context(), store, dir, selector, recursive || maxDepth > 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range files {
				if long {
					fmt.Fprintf(out, "%10d  %s  %s\n", f.Size, f.ModTime.UTC().Format("2006-01-02T15:04:05Z"), f.Path)
					continue
				}
				fmt.Fprintln(out, f.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show size and modification time")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Limit recursion depth (implies -r)")
	cmd.Flags().StringSliceVar(&patterns, "match", nil, "Only list files matching a glob (repeatable)")
	return cmd
}
