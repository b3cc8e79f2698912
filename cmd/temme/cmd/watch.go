package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/ports"
)

var watchForeground bool

var watchCmd = &cobra.Command{
	Use:   "watch FILE [URL]",
	Short: "Re-evaluate a selector document on every save",
	Long: "Fetches URL once and re-evaluates FILE against it whenever FILE is saved. " +
		"Runs in the daemon when one is running, otherwise in the foreground until interrupted.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchForeground, "foreground", "f", false, "watch in this process even when a daemon runs")
}

func runWatch(cmd *cobra.Command, args []string) error {
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
	if !watchForeground && client.Ping() {
		st, err := client.Watch(path, url)
		if err != nil {
			return err
		}
		fmt.Print(formatStatus(p, st))
		return nil
	}

	a, err := newForegroundApp(root)
	if err != nil {
		return err
	}
	defer a.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.Watch(ctx, path, url)
	switch {
	case errors.Is(err, ports.ErrNoSelection):
		return nil
	case err != nil:
		return exitError{1}
	}
	ep := newPalette(resolveColor(colorFlag, noColorFlag, isInteractive()))
	fmt.Fprint(os.Stderr, formatStatus(ep, &st))
	fmt.Fprintln(os.Stderr, ep.gray.Sprint("  ctrl-c to stop"))

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "\n⚡ stopping...")
	return nil
}
