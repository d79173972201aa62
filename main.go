package main

import (
	"os"

	"github.com/spigell/hr-interview-bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
