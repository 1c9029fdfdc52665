// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"crypto/ed25519"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// CheckValid inspects the Envelope's fields for well-formedness. It does
// not verify the signature; use Verify for that.
func (e *Envelope) CheckValid() (err error) {
	if l := len(e.Producer); l != ed25519.PublicKeySize {
		err = multierror.Append(err,
			fmt.Errorf("producer key's length is %d, not %d", l, ed25519.PublicKeySize))
	}

	if e.CreatedAt.IsZero() {
		err = multierror.Append(err, fmt.Errorf("createdAt is unset"))
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		err = multierror.Append(err,
			fmt.Errorf("expiresAt %v is not after createdAt %v", e.ExpiresAt, e.CreatedAt))
	}

	if !e.Priority.IsValid() {
		err = multierror.Append(err, fmt.Errorf("priority %d is undefined", uint8(e.Priority)))
	}
	if !e.Audience.IsValid() {
		err = multierror.Append(err, fmt.Errorf("audience %d is undefined", uint8(e.Audience)))
	}
	if !e.ReceiptPolicy.IsValid() {
		err = multierror.Append(err, fmt.Errorf("receipt policy has undefined bits"))
	}

	if e.Topic == "" {
		err = multierror.Append(err, fmt.Errorf("topic is empty"))
	} else if len(e.Topic) > maxShortStringLen {
		err = multierror.Append(err, fmt.Errorf("topic exceeds %d bytes", maxShortStringLen))
	}

	if e.PayloadType == "" {
		err = multierror.Append(err, fmt.Errorf("payloadType is empty"))
	} else if len(e.PayloadType) > maxShortStringLen {
		err = multierror.Append(err, fmt.Errorf("payloadType exceeds %d bytes", maxShortStringLen))
	}

	if l := len(e.Signature); l != 0 && l != ed25519.SignatureSize {
		err = multierror.Append(err,
			fmt.Errorf("signature's length is %d, not %d", l, ed25519.SignatureSize))
	}

	return
}
