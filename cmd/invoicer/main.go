package main

import (
	"os"

	"github.com/TanWaiKen/invoice-ai-excel/cmd/invoicer/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	os.Exit(cmd.Execute())
}
