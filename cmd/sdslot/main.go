package main

import (
	"os"

	"github.com/ardnew/softsd/cmd/sdslot/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
