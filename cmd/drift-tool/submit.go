// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"

	"github.com/driftmesh/driftmesh-go/pkg/api"
)

var (
	submitPriority string
	submitAudience string
	submitTTL      string
	submitHopLimit uint32
	submitReceipts string
	submitType     string
)

var submitCmd = &cobra.Command{
	Use:   "submit topic (file|-)",
	Short: "Submit a bundle, reading the payload from a file or stdin",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			topic     = args[0]
			dataInput = args[1]

			err  error
			data []byte
		)

		if dataInput == "-" {
			data, err = ioutil.ReadAll(os.Stdin)
		} else {
			data, err = ioutil.ReadFile(dataInput)
		}
		if err != nil {
			log.WithError(err).Fatal("Reading input errored")
		}

		req := api.SubmitRequest{
			Topic:       topic,
			Payload:     data,
			PayloadType: submitType,
			Priority:    submitPriority,
			TTL:         submitTTL,
			HopLimit:    submitHopLimit,
			Audience:    submitAudience,
		}
		if submitReceipts != "" {
			kinds := strings.Split(submitReceipts, ",")
			if submitReceipts == "none" {
				kinds = []string{}
			}
			req.Receipts = &kinds
		}

		var resp api.SubmitResponse
		if err := postJSON("/submit", req, &resp); err != nil {
			log.WithError(err).Fatal("Submitting errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}

		fmt.Println(resp.Id)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitPriority, "priority", "", "low, normal, perishable or emergency")
	submitCmd.Flags().StringVar(&submitAudience, "audience", "", "public, local or trusted")
	submitCmd.Flags().StringVar(&submitTTL, "ttl", "24h", "lifetime as a duration")
	submitCmd.Flags().Uint32Var(&submitHopLimit, "hop-limit", 0, "hop limit, 0 for the default")
	submitCmd.Flags().StringVar(&submitReceipts, "receipts", "", "comma separated receipt kinds, or \"none\"")
	submitCmd.Flags().StringVar(&submitType, "payload-type", "", "payload type tag")
}
