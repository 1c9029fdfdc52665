// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LoadOrCreateKey loads this node's long-lived ed25519 signing key from the
// given file or, if the file does not exist yet, generates a fresh keypair
// and persists it with restrictive permissions. The file holds the private
// key seed in hexadecimal; a ".pub" sibling holds the public key for easy
// out-of-band exchange.
func LoadOrCreateKey(filename string) (priv ed25519.PrivateKey, err error) {
	if raw, readErr := os.ReadFile(filename); readErr == nil {
		seed, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil {
			err = fmt.Errorf("decoding key file %s failed: %w", filename, decErr)
			return
		}
		if l := len(seed); l != ed25519.SeedSize {
			err = fmt.Errorf("key file %s holds %d bytes, not %d", filename, l, ed25519.SeedSize)
			return
		}

		priv = ed25519.NewKeyFromSeed(seed)
		return
	} else if !os.IsNotExist(readErr) {
		err = readErr
		return
	}

	pub, freshPriv, genErr := ed25519.GenerateKey(rand.Reader)
	if genErr != nil {
		err = genErr
		return
	}

	if err = os.WriteFile(filename, []byte(hex.EncodeToString(freshPriv.Seed())+"\n"), 0600); err != nil {
		return
	}
	if err = os.WriteFile(filename+".pub", []byte(hex.EncodeToString(pub)+"\n"), 0644); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"file":   filename,
		"public": hex.EncodeToString(pub),
	}).Info("Generated new signing keypair")

	priv = freshPriv
	return
}
