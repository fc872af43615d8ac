package main

import (
	"fmt"
	"os"

	"pinboard/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "pinboard:", err)
		os.Exit(1)
	}
}
