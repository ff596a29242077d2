// file: main.go
// version: 2.0.0
// guid: 1f2e3d4c-5b6a-4978-8a9b-0c1d2e3f4a5b

package main

import (
	"fmt"
	"os"

	"github.com/jdfalk/media-library/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
