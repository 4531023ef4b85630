package main

import (
	"os"

	"borealis/internal/ctl"
)

func main() { os.Exit(ctl.Main()) }
