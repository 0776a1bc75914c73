package main

import (
	"github.com/pkgfetch/pkgfetch/pkg/cmd"
)

func main() {
	cmd.Execute()
}
