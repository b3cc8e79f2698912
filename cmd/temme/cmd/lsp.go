package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/lsp"
	"github.com/corey/temmekit/internal/app"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Serve the Language Server Protocol on stdio",
	Long: "Diagnostics, document outline and the run / watch / stop commands for editors. " +
		"Logs go to .temme/log/temme.log; stdout carries only protocol messages.",
	Args: cobra.NoArgs,
	RunE: runLSP,
}

func runLSP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	err := app.ServeLSP(ctx, os.Stdin, os.Stdout, app.Config{
		ProjectRoot: projectRoot(),
		Settings:    settings,
		Logger:      logger,
	})
	if errors.Is(err, lsp.ErrExitWithoutShutdown) {
		return exitError{1}
	}
	return err
}
