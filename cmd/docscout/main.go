// Package main is the entry point for the docscout CLI.
package main

import (
	"os"

	"github.com/docscout/docscout/cmd/docscout/cmd"
	"github.com/docscout/docscout/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.IsKind(err, errors.KindValidation) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
