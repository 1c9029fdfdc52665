// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// drift-tool is a command line client for a running driftd, speaking its
// HTTP surface: submitting and inspecting bundles, administering the
// keyring and exchanging bundles through a watched directory.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"
)

// apiAddress is the root flag for the daemon's HTTP surface.
var apiAddress string

var rootCmd = &cobra.Command{
	Use:   "drift-tool",
	Short: "drift-tool talks to a running driftd node",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiAddress, "api", "a",
		"http://localhost:8080", "address of driftd's HTTP surface")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(keyringCmd)
	rootCmd.AddCommand(exchangeCmd)
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
