package main

import (
	"fmt"
	"os"

	"envelope/internal/cli"
)

func main() {
	if err := cli.NewCtlCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "envelopectl:", err)
		os.Exit(1)
	}
}
