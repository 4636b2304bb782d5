// Package main provides the storefront-admin CLI for signing in to the
// storefront admin backend.
package main

import (
	"os"

	"github.com/runevault/storefront-backend/cmd/storefront-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
