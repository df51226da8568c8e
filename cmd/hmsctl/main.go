package main

import (
	"context"
	"fmt"
	"os"

	"github.com/carepoint/server/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
