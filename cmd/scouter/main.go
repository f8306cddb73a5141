package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bios000/scouter/internal"
)

func main() {
	if err := internal.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
