// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/hex"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"

	"github.com/driftmesh/driftmesh-go/pkg/api"
)

var keyringNote string

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Administer the node's keyring",
}

var keyringListCmd = &cobra.Command{
	Use:   "list ring",
	Short: "List the keys of a ring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp api.KeyringResponse
		if err := getJSON("/keyring/"+args[0], &resp); err != nil {
			log.WithError(err).Fatal("Fetching keyring errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}

		if err := printJSON(resp); err != nil {
			log.WithError(err).Fatal("Printing errored")
		}
	},
}

var keyringAddCmd = &cobra.Command{
	Use:   "add ring key-hex",
	Short: "Add a hex encoded public key to a ring",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		publicKey, err := hex.DecodeString(args[1])
		if err != nil {
			log.WithError(err).Fatal("Decoding the key errored")
		}

		var resp api.KeyringResponse
		if err := postJSON("/keyring/"+args[0], api.KeyringAddRequest{
			PublicKey: publicKey,
			Note:      keyringNote,
		}, &resp); err != nil {
			log.WithError(err).Fatal("Adding the key errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}
	},
}

var keyringRemoveCmd = &cobra.Command{
	Use:   "remove ring key-hex",
	Short: "Remove a public key from a ring",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var resp api.KeyringResponse
		if err := deleteReq("/keyring/"+args[0]+"/"+args[1], &resp); err != nil {
			log.WithError(err).Fatal("Removing the key errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}
	},
}

var keyringExportCmd = &cobra.Command{
	Use:   "export ring",
	Short: "Publish a ring as a signed trust bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp api.SubmitResponse
		if err := postJSON("/keyring/"+args[0]+"/export", struct{}{}, &resp); err != nil {
			log.WithError(err).Fatal("Exporting the ring errored")
		}
		if resp.Error != "" {
			log.Fatal(resp.Error)
		}

		fmt.Println(resp.Id)
	},
}

func init() {
	keyringAddCmd.Flags().StringVar(&keyringNote, "note", "", "note stored with the key")

	keyringCmd.AddCommand(keyringListCmd)
	keyringCmd.AddCommand(keyringAddCmd)
	keyringCmd.AddCommand(keyringRemoveCmd)
	keyringCmd.AddCommand(keyringExportCmd)
}
