// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// PayloadTypeReceipt marks an Envelope whose payload is a Receipt.
const PayloadTypeReceipt = "trust:Receipt"

// PayloadTypeKeyringExport marks an Envelope whose payload is an exported
// keyring, see the keyring package.
const PayloadTypeKeyringExport = "trust:KeyringExport"

// receiptLifetime bounds how long a receipt itself stays alive. Receipts
// flow the ordinary bundle path and are subject to TTL and eviction.
const receiptLifetime = time.Hour

// Receipt is the payload of an acknowledgment bundle: one node reporting
// one state transition of one referenced bundle.
type Receipt struct {
	// Ref is the BundleID of the acknowledged bundle.
	Ref BundleID

	// Kind of the reported state transition.
	Kind ReceiptKind

	// Reason qualifies the Kind, e.g. "evicted" for an expired receipt
	// written under cache pressure. Usually empty.
	Reason string

	// Node is the public key of the reporting node.
	Node []byte

	// At is the instant of the state transition at the reporting node.
	At time.Time
}

// MarshalCbor writes this Receipt's CBOR representation.
func (rcpt *Receipt) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}

	if err := cboring.WriteByteString(rcpt.Ref.Bytes(), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(rcpt.Kind), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(rcpt.Reason, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(rcpt.Node, w); err != nil {
		return err
	}
	return cboring.WriteUInt(timeToMillis(rcpt.At), w)
}

// UnmarshalCbor reads a CBOR representation of a Receipt.
func (rcpt *Receipt) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("Receipt expected array of length 5, got %d", n)
	}

	if ref, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(ref) != BundleIDLen {
		return fmt.Errorf("Receipt's reference is %d bytes, not %d", len(ref), BundleIDLen)
	} else {
		copy(rcpt.Ref[:], ref)
	}

	if kind, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		rcpt.Kind = ReceiptKind(kind)
	}

	if reason, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		rcpt.Reason = reason
	}

	if node, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		rcpt.Node = node
	}

	if at, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		rcpt.At = millisToTime(at)
	}

	return nil
}

// ReceiptTopic is the topic under which receipts for the given bundle are
// published. Keeping the referenced id in the topic lets the store's topic
// index answer delivery status queries.
func ReceiptTopic(ref BundleID) string {
	return "trust/receipt/" + ref.String()
}

// NewReceiptEnvelope builds and signs a receipt bundle for the referenced
// Envelope. The receipt inherits the reference's audience, is capped at
// Normal priority and travels with half the reference's hop limit, at
// least one hop.
func NewReceiptEnvelope(ref *Envelope, kind ReceiptKind, reason string, priv ed25519.PrivateKey) (e Envelope, err error) {
	refID, idErr := ref.ID()
	if idErr != nil {
		err = idErr
		return
	}

	hopLimit := ref.HopLimit / 2
	if hopLimit < 1 {
		hopLimit = 1
	}

	pub, pubOk := priv.Public().(ed25519.PublicKey)
	if !pubOk {
		err = fmt.Errorf("private key's public key is not an ed25519 public key")
		return
	}

	rcpt := Receipt{
		Ref:    refID,
		Kind:   kind,
		Reason: reason,
		Node:   pub,
		At:     time.Now().UTC().Truncate(time.Millisecond),
	}

	var payload bytes.Buffer
	if err = cboring.Marshal(&rcpt, &payload); err != nil {
		return
	}

	return Builder().
		Topic(ReceiptTopic(refID)).
		PayloadType(PayloadTypeReceipt).
		Payload(payload.Bytes()).
		Priority(ref.Priority.Min(Normal)).
		Audience(ref.Audience).
		HopLimit(hopLimit).
		TTL(receiptLifetime).
		Build(priv)
}

// ParseReceipt decodes a Receipt from an Envelope's payload.
func ParseReceipt(e *Envelope) (rcpt Receipt, err error) {
	if !e.IsReceipt() {
		err = fmt.Errorf("envelope's payload type is %q, not %q", e.PayloadType, PayloadTypeReceipt)
		return
	}

	err = cboring.Unmarshal(&rcpt, bytes.NewReader(e.Payload))
	return
}
