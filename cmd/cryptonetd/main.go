// Command cryptonetd serves the privid face matching engine over HTTP.
package main

import (
	"os"

	"github.com/kacy/cryptonet/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
