package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vinceanalytics/pave/internal/cmd"
)

func main() {
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
