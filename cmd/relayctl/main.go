// Package main is the relayctl command line client.
package main

import (
	"fmt"
	"os"

	"github.com/oremus-labs/ol-advisor-relay/internal/relayctl"
)

func main() {
	if err := relayctl.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
