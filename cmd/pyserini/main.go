// Command pyserini is a batch query-execution driver for inverted-index
// search backends: it runs topic sets against an index and writes ranked run
// files.
package main

import (
	"os"

	"github.com/prasys/pyserini/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
