package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/app"
	"github.com/corey/temmekit/internal/config"
	"github.com/corey/temmekit/internal/logging"
)

var (
	verboseFlag bool
	colorFlag   string
	noColorFlag bool

	// Set by the persistent pre-run for every command.
	settings *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "temme",
	Short: "temme — live CSS selector extraction for HTML",
	Long: "Runs temme selector documents against web pages or local files, " +
		"watches them while you edit, and serves editors over LSP.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { _ = logger.Sync() },
}

// setup loads config and builds the logger. Logs go to .temme/log/temme.log;
// --verbose also mirrors them to stderr at debug level.
func setup(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	settings = cfg

	log, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Verbose: verboseFlag,
		File:    app.NewPaths(root).Log,
		Stderr:  verboseFlag,
	})
	if err != nil {
		return err
	}
	logger = log.With(zap.String("cmd", cmd.Name()))
	return nil
}

// projectRoot returns the project root (cwd by default).
func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return dir
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging, mirrored to stderr")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto", "colorize output: auto, always, never")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colors")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
}
