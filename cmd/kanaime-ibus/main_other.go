//go:build !linux

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "kanaime-ibus: IBus is only available on Linux; use kanaimectl try or serve")
	os.Exit(1)
}
