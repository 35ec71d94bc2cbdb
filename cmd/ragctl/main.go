package main

import (
	"os"

	"github.com/kirillkom/graphrag-assistant/cmd/ragctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
