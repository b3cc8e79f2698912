package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/ports"
)

var runCmd = &cobra.Command{
	Use:   "run FILE [URL]",
	Short: "Run a selector document once",
	Long: "Fetches URL (or the document's only link) and writes the result to FILE.json. " +
		"Routes through the daemon when one is running.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	path, err := absPath(args[0])
	if err != nil {
		return err
	}
	url, err := resolveURL(cmd.Context(), path, argOr(args, 1), settings.LinkMode(), terminalPicker())
	if errors.Is(err, ports.ErrNoSelection) {
		return nil
	}
	if err != nil {
		return err
	}
	p := newPalette(useColor())

	client := socket.NewClient(socket.SocketPath(root))
	if client.Ping() {
		logger.Debug("run via daemon", zap.String("document", path), zap.String("url", url))
		res, err := client.Run(path, url)
		if err != nil {
			return err
		}
		fmt.Print(formatRun(p, res))
		return nil
	}

	a, err := newForegroundApp(root)
	if err != nil {
		return err
	}
	defer a.Stop()

	res, err := a.Run(cmd.Context(), path, url)
	switch {
	case errors.Is(err, ports.ErrNoSelection):
		return nil
	case err != nil:
		// Already shown by the host.
		return exitError{1}
	}
	fmt.Print(formatRun(p, &res))
	return nil
}
