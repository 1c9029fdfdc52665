// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"os"
	"path"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// Item is the metadata row the Store keeps per bundle. The envelope bytes
// themselves live in a flat file referenced by Filename; everything in the
// Item is mutable node-local state, never part of the signed envelope.
type Item struct {
	Id  string `badgerhold:"key"`
	BId bundle.BundleID

	Queue    string    `badgerholdIndex:"Queue"`
	Priority uint8     `badgerholdIndex:"Priority"`
	Topic    string    `badgerholdIndex:"Topic"`
	Expires  time.Time `badgerholdIndex:"Expires"`

	EnqueuedAt  time.Time
	ExpiredAt   time.Time
	LastTouched time.Time

	// HopsSeen is the hop distance the bundle traveled to reach this node,
	// advanced by one for every forward this node performs. Locally
	// produced bundles start at zero.
	HopsSeen uint32

	// PeersSeen holds peer identities known to possess the bundle.
	PeersSeen []string

	// DeliveredTo holds local subscription identifiers the bundle was
	// delivered to.
	DeliveredTo []string

	// EmittedReceipts records which receipt kinds this node has already
	// emitted for the bundle, as a bundle.ReceiptPolicy bit set.
	EmittedReceipts uint8

	// Policy caches the envelope's receipt policy bits.
	Policy uint8

	// HopLimit and Audience are cached from the envelope so forwarding
	// selection does not need to load the envelope file.
	HopLimit uint32
	Audience uint8

	CreatedAt time.Time

	PayloadSize uint64
	Filename    string

	QuarantineReason string
}

// CurrentQueue is the Item's Queue as a typed value.
func (item Item) CurrentQueue() Queue {
	return Queue(item.Queue)
}

// HasPeerSeen checks whether the given peer is known to hold the bundle.
func (item Item) HasPeerSeen(peer string) bool {
	for _, p := range item.PeersSeen {
		if p == peer {
			return true
		}
	}
	return false
}

// ReceiptPolicy of the stored envelope, cached on the Item so selection
// and eviction do not need to load the envelope file.
func (item Item) ReceiptPolicy() bundle.ReceiptPolicy {
	return bundle.ReceiptPolicy(item.Policy)
}

// Load reads the Item's envelope back from the disk.
func (item Item) Load() (e bundle.Envelope, err error) {
	f, fErr := os.Open(item.Filename)
	if fErr != nil {
		err = fErr
		return
	}
	defer func() { _ = f.Close() }()

	e, err = bundle.ParseEnvelope(f)
	return
}

// storeEnvelope serializes the envelope of an Item to the disk.
func (item Item) storeEnvelope(e *bundle.Envelope) error {
	f, err := os.OpenFile(item.Filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err := e.WriteEnvelope(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// deleteEnvelope removes the serialized envelope from the disk.
func (item Item) deleteEnvelope() error {
	return os.Remove(item.Filename)
}

// newItem creates the metadata row for an envelope entering the store.
func newItem(e *bundle.Envelope, bid bundle.BundleID, queue Queue, envDir string) Item {
	now := time.Now().UTC()

	return Item{
		Id:  bid.String(),
		BId: bid,

		Queue:    string(queue),
		Priority: uint8(e.Priority),
		Topic:    e.Topic,
		Expires:  e.ExpiresAt,

		EnqueuedAt:  now,
		LastTouched: now,

		Policy:      uint8(e.ReceiptPolicy),
		HopLimit:    e.HopLimit,
		Audience:    uint8(e.Audience),
		CreatedAt:   e.CreatedAt,
		PayloadSize: e.PayloadSize(),
		Filename:    path.Join(envDir, bid.String()),
	}
}
