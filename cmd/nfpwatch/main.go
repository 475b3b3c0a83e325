// nfpwatch tracks social media accounts suspected of promoting fraudulent
// investment schemes: it captures their ephemeral content on a schedule and
// analyzes captured video against a legal reference corpus.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nfpwatch/internal/config"
	"nfpwatch/internal/logging"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nfpwatch",
	Short: "Content acquisition and compliance analysis for tracked accounts",
	Long: `nfpwatch maintains a roster of tracked accounts, captures their
ephemeral content before it expires, and runs captured video through a
compliance analysis chain against a legal reference corpus.

Credentials come from the environment: IG_USERNAME, IG_PASSWORD and
IG_APP_ID for the platform, GEMINI_API_KEY for analysis. Tunables live in
an optional YAML config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nfpwatch.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	listTargetsCmd.Flags().BoolVar(&showItems, "items", false, "also list each target's captured items")

	rootCmd.AddCommand(addTargetCmd)
	rootCmd.AddCommand(listTargetsCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
