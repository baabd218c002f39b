/*
This command provides an executable version of passeplat with the
built-in tasks, conditions and scheme processors.

For the list of command line options, run:

	passeplat -help

For details about the configuration directory and the usage, please see
the documentation of the root passeplat package.
*/
package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat"
	"github.com/passeplat/passeplat/config"
)

var (
	version string
	commit  string
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	if cfg.PrintVersion {
		fmt.Printf(
			"Passeplat version %s (commit: %s)\n",
			version, commit,
		)

		return
	}

	log.SetLevel(cfg.ApplicationLogLevel)
	log.Fatal(passeplat.Run(cfg.ToOptions()))
}
