// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

var (
	// ErrKeyMissing is returned when signing was requested without a key.
	ErrKeyMissing = errors.New("no signing key is loaded")

	// ErrBadSignature is returned when an Envelope's signature does not
	// verify against its producer key over the canonical form.
	ErrBadSignature = errors.New("signature verification failed")

	// ErrIdMismatch is returned when a claimed BundleID does not equal the
	// hash of the canonical form.
	ErrIdMismatch = errors.New("bundle id does not match canonical form")
)

// Sign computes the detached signature over the Envelope's canonical form
// and stores both the signature and the producer's public key within the
// Envelope. Signing must happen before the Envelope's id is ever used, as
// the producer field is part of the canonical form.
func (e *Envelope) Sign(priv ed25519.PrivateKey) error {
	if priv == nil {
		return ErrKeyMissing
	}
	if l := len(priv); l != ed25519.PrivateKeySize {
		return fmt.Errorf("ed25519 private key's length is %d, not %d", l, ed25519.PrivateKeySize)
	}

	pub, pubOk := priv.Public().(ed25519.PublicKey)
	if !pubOk {
		return fmt.Errorf("private key's public key is not an ed25519 public key")
	}
	e.Producer = pub

	canonical, err := e.CanonicalBytes()
	if err != nil {
		return err
	}

	e.Signature = ed25519.Sign(priv, canonical)
	return nil
}

// Verify checks the Envelope's signature against its producer key over the
// recomputed canonical form. A nil return means the signature holds.
func (e *Envelope) Verify() (err error) {
	if l := len(e.Producer); l != ed25519.PublicKeySize {
		return fmt.Errorf("%w: producer key's length is %d, not %d",
			ErrBadSignature, l, ed25519.PublicKeySize)
	}
	if l := len(e.Signature); l != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature's length is %d, not %d",
			ErrBadSignature, l, ed25519.SignatureSize)
	}

	canonical, canErr := e.CanonicalBytes()
	if canErr != nil {
		return canErr
	}

	// ed25519.Verify panics for an invalid key size..
	defer func() {
		if recover() != nil {
			err = ErrBadSignature
		}
	}()

	if !ed25519.Verify(e.Producer, canonical, e.Signature) {
		return ErrBadSignature
	}
	return nil
}

// VerifyID checks a claimed BundleID against the Envelope's canonical form.
func (e *Envelope) VerifyID(claimed BundleID) error {
	bid, err := e.ID()
	if err != nil {
		return err
	}
	if !bid.Equal(claimed) {
		return ErrIdMismatch
	}
	return nil
}
