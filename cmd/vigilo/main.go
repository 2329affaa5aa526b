package main

import (
	"os"

	"github.com/vigilo/vigilo/cmd/vigilo/cmds"
	"github.com/vigilo/vigilo/pkg/config"
)

func main() {
	conf := config.LoadConfig()
	if err := cmds.New(conf).Execute(); err != nil {
		os.Exit(1)
	}
}
