// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"time"
)

// Envelope is the transport unit of driftmesh. Once signed it is immutable;
// every mutable state, like queue membership or hop counting, lives outside
// in the store's metadata.
//
// The zero value is not a usable Envelope; use the Builder.
type Envelope struct {
	// Producer is the ed25519 public key of the signer.
	Producer []byte

	// CreatedAt is the UTC instant of signing.
	CreatedAt time.Time

	// ExpiresAt is the UTC instant after which the bundle is logically dead.
	// It must be after CreatedAt.
	ExpiresAt time.Time

	// Priority is one of Low, Normal, Perishable, Emergency.
	Priority Priority

	// Audience is the visibility class, enforced by keyring membership.
	Audience Audience

	// Topic is a short string on which subscribers filter.
	Topic string

	// PayloadType names the payload schema. It is opaque to the substrate.
	PayloadType string

	// Payload is an opaque byte string.
	Payload []byte

	// HopLimit is the maximum number of further forwards permitted.
	HopLimit uint32

	// ReceiptPolicy is the set of receipt kinds the producer asked for.
	ReceiptPolicy ReceiptPolicy

	// Signature is the detached ed25519 signature over the canonical form.
	Signature []byte
}

// ID computes this Envelope's BundleID, the SHA-256 digest over its
// canonical form.
func (e *Envelope) ID() (bid BundleID, err error) {
	canonical, canErr := e.CanonicalBytes()
	if canErr != nil {
		err = canErr
		return
	}

	bid = sha256.Sum256(canonical)
	return
}

// MustID returns this Envelope's BundleID or panics, compare the ID method.
// It is intended for Envelopes which already passed validation.
func (e *Envelope) MustID() BundleID {
	bid, err := e.ID()
	if err != nil {
		panic(err)
	}
	return bid
}

// TTL is the Envelope's total lifetime, ExpiresAt - CreatedAt.
func (e *Envelope) TTL() time.Duration {
	return e.ExpiresAt.Sub(e.CreatedAt)
}

// IsExpired checks the Envelope's lifetime against the given instant.
func (e *Envelope) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// PayloadSize is the payload's length in bytes.
func (e *Envelope) PayloadSize() uint64 {
	return uint64(len(e.Payload))
}

// IsReceipt checks if this Envelope carries a receipt payload. Receipts are
// never acknowledged themselves to keep the receipt traffic from echoing.
func (e *Envelope) IsReceipt() bool {
	return e.PayloadType == PayloadTypeReceipt
}

// WriteEnvelope serializes the complete Envelope, signature included, into
// the given Writer. The format is the canonical form followed by the
// length-prefixed signature.
func (e *Envelope) WriteEnvelope(w io.Writer) error {
	canonical, err := e.CanonicalBytes()
	if err != nil {
		return err
	}

	if _, err := w.Write(canonical); err != nil {
		return err
	}
	return writeBytesField(w, e.Signature)
}

// MarshalBinary serializes the complete Envelope, compare WriteEnvelope.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	var buff bytes.Buffer
	if err := e.WriteEnvelope(&buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// ParseEnvelope reads a complete Envelope back from the given Reader.
func ParseEnvelope(r io.Reader) (e Envelope, err error) {
	if err = e.readCanonicalFields(r); err != nil {
		return
	}

	if e.Signature, err = readBytesField(r, ed25519.SignatureSize); err != nil {
		err = fmt.Errorf("reading signature failed: %w", err)
	}
	return
}

// UnmarshalBinary deserializes a complete Envelope, compare ParseEnvelope.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	parsed, err := ParseEnvelope(bytes.NewReader(data))
	if err != nil {
		return err
	}

	*e = parsed
	return nil
}

func (e *Envelope) String() string {
	bid, err := e.ID()
	if err != nil {
		return fmt.Sprintf("envelope(unaddressable: %v)", err)
	}
	return fmt.Sprintf("envelope(%s,%s,%s,%s)", bid, e.Priority, e.Audience, e.Topic)
}
