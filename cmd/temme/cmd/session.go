package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/app"
	"github.com/corey/temmekit/internal/domain/status"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon's watch session",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watch session",
	Long:  "Asks the daemon, or reads the last status the daemon wrote when it is not running.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon status",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func runStop(cmd *cobra.Command, args []string) error {
	client := socket.NewClient(socket.SocketPath(projectRoot()))
	if !client.Ping() {
		fmt.Println("⚡ daemon is not running")
		return nil
	}
	st, err := client.Stop()
	if err != nil {
		return err
	}
	fmt.Print(formatStatus(newPalette(useColor()), st))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	p := newPalette(useColor())
	client := socket.NewClient(socket.SocketPath(root))
	if client.Ping() {
		st, err := client.Status()
		if err != nil {
			return err
		}
		fmt.Print(formatStatus(p, st))
		return nil
	}

	d, err := status.ReadJSON(app.NewPaths(root).Status)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Println("⚡ daemon is not running")
		return nil
	}
	if err != nil {
		return err
	}
	st := app.StatusResult(d)
	fmt.Print(formatStatus(p, &st))
	fmt.Println(p.gray.Sprint("  (daemon is not running; last recorded status)"))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := socket.NewClient(socket.SocketPath(projectRoot()))
	if !client.Ping() {
		fmt.Println("⚡ temme daemon is not running")
		return nil
	}
	health, err := client.Health()
	if err != nil {
		return err
	}
	fmt.Print(formatHealth(newPalette(useColor()), health))
	return nil
}
