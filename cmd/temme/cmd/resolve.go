package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corey/temmekit/internal/adapters/filehost"
	"github.com/corey/temmekit/internal/app"
	"github.com/corey/temmekit/internal/domain/links"
	"github.com/corey/temmekit/internal/ports"
)

// resolveURL picks the fetch target on the CLI side, where a terminal is
// available, before anything reaches the daemon. An explicit url wins and a
// single link is used directly. No links resolves to "" so the host reports
// it. Several links need a picker.
func resolveURL(ctx context.Context, path, url string, mode links.Mode, picker ports.Picker) (string, error) {
	if url != "" {
		return url, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	found := links.Extract(string(data), mode)
	switch {
	case len(found) == 0:
		return "", nil
	case len(found) > 1 && picker == nil:
		return "", fmt.Errorf("%s has %d links; pass one as URL or run in a terminal", path, len(found))
	}
	return links.Choose(ctx, found, picker)
}

// terminalPicker returns a picker when a user can answer it.
func terminalPicker() ports.Picker {
	if !isInteractive() {
		return nil
	}
	return &filehost.TermPicker{Input: os.Stdin, Output: os.Stderr}
}

// absPath resolves a document argument for the daemon, whose working
// directory may differ.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// newForegroundApp wires an in-process app for commands that run without a
// daemon. Messages go to stderr and panel output to stdout.
func newForegroundApp(root string) (*app.App, error) {
	a, err := app.New(app.Config{
		ProjectRoot: root,
		Settings:    settings,
		Logger:      logger,
		Out:         os.Stderr,
		Panel:       os.Stdout,
		Picker:      terminalPicker(),
		Color:       resolveColor(colorFlag, noColorFlag, isInteractive()),
	})
	if err != nil {
		return nil, lockError(root, err)
	}
	if err := a.Start(); err != nil {
		a.Stop()
		return nil, err
	}
	return a, nil
}

func argOr(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
