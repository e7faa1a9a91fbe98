// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// pridemo drives a D-channel controller over a TCP stand-in for the
// HDLC driver: `serve` runs the network side, `dial` the CPE side.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	addr       string
	configFile string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:   "pridemo",
		Short: "exercise the Q.921/ROSE stack over a loopback D-channel",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:20921", "address of the D-channel transport")
	root.PersistentFlags().StringVar(&configFile, "config", "", "controller config JSON file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose frame logging")

	root.AddCommand(serveCmd(), dialCmd())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("pridemo failed")
		os.Exit(1)
	}
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(log)
}
