package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corey/temmekit/internal/adapters/filehost"
	"github.com/corey/temmekit/internal/adapters/temme"
	"github.com/corey/temmekit/internal/domain/diagnose"
	"github.com/corey/temmekit/internal/domain/links"
)

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Report syntax errors in selector documents",
	Long:  "Parses each FILE and prints its diagnostic. Exits 1 when any file has a syntax error.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

var linksMode string

var linksCmd = &cobra.Command{
	Use:   "links FILE",
	Short: "List the links found in a selector document",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinks,
}

func init() {
	linksCmd.Flags().StringVar(&linksMode, "mode", "", "extraction mode: tagged, all, auto (default from config)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	p := newPalette(useColor())
	// Files named on the command line are checked whatever their extension.
	host := filehost.New(filehost.Options{
		Recognize:  func(string, string) bool { return true },
		LanguageID: settings.LanguageID,
		Out:        os.Stdout,
		Color:      useColor(),
		Logger:     logger,
	})
	reporter := diagnose.NewReporter(temme.New(), host, diagnose.Options{Logger: logger})

	failed := 0
	for _, path := range args {
		doc, err := host.Open(path)
		if err != nil {
			return err
		}
		reporter.Check(doc)
		if len(host.Diagnostics(doc.URI())) > 0 {
			failed++
			continue
		}
		fmt.Printf("%s: %s\n", path, p.green.Sprint("ok"))
	}
	if failed > 0 {
		return exitError{1}
	}
	return nil
}

func runLinks(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	mode := settings.LinkMode()
	if linksMode != "" {
		mode = links.ParseMode(linksMode)
	}
	fmt.Print(formatLinks(newPalette(useColor()), links.Extract(string(data), mode)))
	return nil
}
