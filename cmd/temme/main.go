// temme runs temme selector documents against HTML.
// One binary: run once, watch while editing, daemon, and language server.
package main

import (
	"os"

	"github.com/corey/temmekit/cmd/temme/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if code := cmd.ExitCode(err); code >= 0 {
			os.Exit(code)
		}
		os.Exit(1)
	}
}
