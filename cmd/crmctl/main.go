package main

import (
	"os"

	"crm-dashboard/cmd/crmctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
