package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/tailer"
	"github.com/corey/temmekit/internal/app"
)

var (
	logsFollow bool
	logsLevel  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the project log",
	Long:  "Prints .temme/log/temme.log in a readable form. With --follow, keeps printing new entries until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep printing new entries")
	logsCmd.Flags().StringVar(&logsLevel, "level", "debug", "minimum level to show")
}

func runLogs(cmd *cobra.Command, args []string) error {
	p := newPalette(useColor())
	path := app.NewPaths(projectRoot()).Log

	show := func(e *tailer.Entry) {
		if e.AtLeast(logsLevel) {
			fmt.Print(formatLogEntry(p, e))
		}
	}
	skipped := 0
	t := tailer.New(tailer.Config{
		Path:      path,
		FromStart: true,
		Callback:  show,
		OnError:   func(error) { skipped++ },
	})

	if !logsFollow {
		if err := t.ReadAll(); err != nil {
			return err
		}
		if skipped > 0 {
			fmt.Fprintf(os.Stderr, "(%d unreadable lines skipped)\n", skipped)
		}
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	t.Start()
	fmt.Fprintln(os.Stderr, p.gray.Sprintf("following %s (ctrl-c to stop)", path))
	<-sigCh
	t.Stop()
	return nil
}

func formatLogEntry(p palette, e *tailer.Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(p.gray.Sprint(e.Time.Local().Format(time.TimeOnly)))
		b.WriteString(" ")
	}
	level := fmt.Sprintf("%-5s", strings.ToUpper(e.Level))
	switch e.Level {
	case "warn":
		level = p.yellow.Sprint(level)
	case "error", "dpanic", "panic", "fatal":
		level = p.red.Sprint(level)
	case "info":
		level = p.cyan.Sprint(level)
	default:
		level = p.gray.Sprint(level)
	}
	b.WriteString(level)
	b.WriteString(" ")
	if e.Logger != "" {
		b.WriteString(p.bold.Sprint(e.Logger))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	for _, k := range e.FieldKeys() {
		fmt.Fprintf(&b, " %s=%v", p.gray.Sprint(k), e.Fields[k])
	}
	b.WriteString("\n")
	return b.String()
}
