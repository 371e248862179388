package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gobeaver/artifactkit"
	"github.com/gobeaver/artifactkit/internal/logging"
	"github.com/gobeaver/artifactkit/pathmap"

	_ "github.com/gobeaver/artifactkit/driver/local"
	_ "github.com/gobeaver/artifactkit/driver/memory"
	_ "github.com/gobeaver/artifactkit/driver/s3"
	_ "github.com/gobeaver/artifactkit/driver/sftp"
	_ "github.com/gobeaver/artifactkit/driver/webdav"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbosity int
	envPrefix string
	dir       string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "artifactkit",
		Short: "Publish build artifacts to a store and fetch them back",
		Long: `artifactkit locates build outputs with % wildcard patterns, maps them to
destination paths and uploads them to an artifact store (WebDAV by default).
The store is configured through BEAVER_ARTIFACTKIT_* environment variables.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(g.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().CountVarP(&g.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&g.envPrefix, "env-prefix", "", "Environment variable prefix for store config (default BEAVER_)")
	rootCmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Working directory patterns and downloads are resolved against")

	rootCmd.AddCommand(
		newLocateCmd(g),
		newRemapCmd(g),
		newPublishCmd(g),
		newFetchCmd(g),
		newExtractCmd(g),
		newListCmd(g),
		newDriversCmd(),
	)

	return rootCmd
}

// loadConfig reads the store configuration from the environment.
func (g *globalFlags) loadConfig() (*artifactkit.Config, error) {
	if g.envPrefix != "" {
		return artifactkit.WithPrefix(g.envPrefix).Config()
	}
	return artifactkit.GetConfig()
}

// openStore builds the configured store.
func (g *globalFlags) openStore() (artifactkit.FileSystem, *artifactkit.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := artifactkit.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// parseParams turns repeated KEY=VALUE flags into a map.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want KEY=VALUE", pair)
		}
		params[key] = value
	}
	return params, nil
}

// checkParams fails before any work is done when template names a
// placeholder that no --param sets. Every missing key is reported.
func checkParams(template string, params map[string]string) error {
	var missing []string
	seen := make(map[string]bool)
	for _, tok := range pathmap.Placeholders(template) {
		// $1..$N come from the pattern, not from --param.
		if _, err := strconv.Atoi(tok); err == nil || seen[tok] {
			continue
		}
		seen[tok] = true
		if _, ok := params[tok]; !ok {
			missing = append(missing, tok)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w in %q: no --param for %s", pathmap.ErrUnresolvedPlaceholder, template, strings.Join(missing, ", "))
	}
	return nil
}

func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List the available store drivers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range artifactkit.Drivers() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
