// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"

	"github.com/driftmesh/driftmesh-go/pkg/api"
)

var showPayloadOnly bool

var showCmd = &cobra.Command{
	Use:   "show id",
	Short: "Show a stored bundle by its id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp api.BundleResponse
		if err := getJSON("/bundle/"+args[0], &resp); err != nil {
			log.WithError(err).Fatal("Fetching errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}

		if showPayloadOnly {
			if _, err := os.Stdout.Write(resp.Payload); err != nil {
				log.WithError(err).Fatal("Writing payload errored")
			}
			return
		}

		if err := printJSON(resp); err != nil {
			log.WithError(err).Fatal("Printing errored")
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status id",
	Short: "Show the delivery timeline of a bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp api.StatusResponse
		if err := getJSON("/status/"+args[0], &resp); err != nil {
			log.WithError(err).Fatal("Fetching status errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}

		if err := printJSON(resp); err != nil {
			log.WithError(err).Fatal("Printing errored")
		}
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue name",
	Short: "List a queue: inbox, outbox, pending, delivered, expired or quarantine",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp api.QueueResponse
		if err := getJSON("/queue/"+args[0], &resp); err != nil {
			log.WithError(err).Fatal("Fetching queue errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}

		if err := printJSON(resp); err != nil {
			log.WithError(err).Fatal("Printing errored")
		}
	},
}

func init() {
	showCmd.Flags().BoolVar(&showPayloadOnly, "payload", false, "write the raw payload to stdout")
}
