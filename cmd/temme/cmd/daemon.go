package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/app"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the temme daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long:  "Serves run, watch and status requests on a unix socket until stopped.",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	sockPath := socket.SocketPath(root)

	client := socket.NewClient(sockPath)
	if client.Ping() {
		fmt.Println("⚡ daemon already running")
		return nil
	}

	// The daemon has no terminal to pick links with; the CLI resolves them.
	a, err := app.New(app.Config{
		ProjectRoot: root,
		Settings:    settings,
		Logger:      logger,
		Listen:      true,
		Out:         os.Stderr,
		Panel:       os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init: %w", lockError(root, err))
	}
	if err := a.Start(); err != nil {
		a.Stop()
		return err
	}
	if err := os.WriteFile(a.Paths.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		logger.Warn("write pid file", zap.Error(err))
	}
	logger.Info("daemon started", zap.String("socket", sockPath), zap.String("root", root))
	fmt.Printf("⚡ temme daemon started at %s\n", sockPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-a.ShutdownCh():
	}

	fmt.Println("\n⚡ shutting down...")
	return a.Stop()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	client := socket.NewClient(socket.SocketPath(projectRoot()))
	if !client.Ping() {
		fmt.Println("⚡ daemon is not running")
		return nil
	}
	if err := client.Shutdown(); err != nil {
		return err
	}
	fmt.Println("⚡ daemon stopped")
	return nil
}
