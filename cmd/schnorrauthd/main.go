// Command schnorrauthd runs the Schnorr passwordless authentication server.
package main

import (
	"fmt"
	"os"

	"github.com/coldforge/schnorrauth/cmd/schnorrauthd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
