package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gobeaver/artifactkit/pathmap"
)

func newLocateCmd(g *globalFlags) *cobra.Command {
	var showCaptures bool

	cmd := &cobra.Command{
		Use:   "locate <pattern>",
		Short: "List the files and directories a pattern matches",
		Example: `  artifactkit locate 'build/outputs/%/%.apk'
  artifactkit locate --captures 'modules/(core|app)/build/%.jar'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pathmap.Compile(args[0])
			if err != nil {
				return err
			}
			matches, err := pathmap.Locate(p, g.dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range matches {
				line := m.Rel
				if m.IsDir {
					line += "/"
				}
				if showCaptures && len(m.Captures) > 0 {
					line += "\t" + strings.Join(m.Captures, "\t")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showCaptures, "captures", false, "Print the captured values after each match")
	return cmd
}

func newRemapCmd(g *globalFlags) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "remap <pattern> <template>",
		Short: "Show where each match would be published, without uploading",
		Example: `  artifactkit remap 'build/%.aab' 'android/$BUILD/$1.aab' --param BUILD=1042`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			if err := checkParams(args[1], values); err != nil {
				return err
			}
			p, err := pathmap.Compile(args[0])
			if err != nil {
				return err
			}
			matches, err := pathmap.Locate(p, g.dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range matches {
				dest, err := pathmap.Remap(m, args[1], values)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s -> %s\n", m.Rel, dest)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Named placeholder value, KEY=VALUE (repeatable)")
	return cmd
}
