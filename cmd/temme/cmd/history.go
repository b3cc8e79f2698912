package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/bbolt"
	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/app"
)

var (
	historyLimit int
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history [FILE]",
	Short: "Show recent runs and watch sessions",
	Long:  "Lists the newest records first, for FILE or for every document. No daemon required.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum records")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete every record of this project")
}

func runHistory(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	p := newPalette(useColor())
	uri, err := app.DocumentURI(argOr(args, 0))
	if err != nil {
		return err
	}

	client := socket.NewClient(socket.SocketPath(root))
	if client.Ping() {
		if historyClear {
			return errors.New("the daemon holds the history database\n  → stop it first:  temme daemon stop")
		}
		res, err := client.History(uri, historyLimit)
		if err != nil {
			return err
		}
		fmt.Print(formatHistory(p, res))
		return nil
	}

	paths := app.NewPaths(root)
	if _, err := os.Stat(paths.DB); errors.Is(err, os.ErrNotExist) {
		fmt.Print(formatHistory(p, &socket.HistoryResult{}))
		return nil
	}
	store, err := bbolt.NewStore(paths.DB, filepath.Base(root))
	if err != nil {
		return lockError(root, err)
	}
	defer store.Close()

	if historyClear {
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("⚡ history cleared")
		return nil
	}
	recs, err := store.Recent(uri, historyLimit)
	if err != nil {
		return err
	}
	res := app.HistoryResult(recs)
	fmt.Print(formatHistory(p, &res))
	return nil
}
