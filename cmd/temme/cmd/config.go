package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/app"
	"github.com/corey/temmekit/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long:  "Shows project paths, daemon status and the effective settings. No daemon required.",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	paths := app.NewPaths(root)
	sockPath := socket.SocketPath(root)
	p := newPalette(useColor())

	daemonStatus := p.yellow.Sprint("✗ not running")
	if socket.NewClient(sockPath).Ping() {
		daemonStatus = p.green.Sprint("✓ running")
	}

	fmt.Println(p.bold.Sprint("⚡ temme config"))
	fmt.Printf("  Project:    %s\n", filepath.Base(root))
	fmt.Printf("  Root:       %s\n", root)
	fmt.Printf("  User file:  %s\n", fileState(config.UserPath()))
	fmt.Printf("  Project:    %s\n", fileState(paths.Config))
	fmt.Printf("  DB:         %s\n", paths.DB)
	fmt.Printf("  Log:        %s\n", paths.Log)
	fmt.Printf("  Socket:     %s\n", sockPath)
	fmt.Printf("  Daemon:     %s\n", daemonStatus)
	fmt.Println()
	fmt.Println(p.gray.Sprint("# effective settings"))
	return toml.NewEncoder(os.Stdout).Encode(settings)
}

func fileState(path string) string {
	if path == "" {
		return "(none)"
	}
	if _, err := os.Stat(path); err != nil {
		return path + " (absent)"
	}
	return path
}
