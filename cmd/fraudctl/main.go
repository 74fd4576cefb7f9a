// Command fraudctl runs the fraud scoring API and its administration tasks.
package main

import (
	"fmt"
	"os"

	"github.com/archon-research/fraud-scoring/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
