// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"bytes"
	"encoding/hex"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// emitReceipt emits a receipt of the given kind for the referenced bundle
// if its policy asked for it and none of that kind left this node yet.
// Receipts are never emitted for receipts, so acknowledgments cannot
// cascade.
func (n *Node) emitReceipt(ref *bundle.Envelope, item *store.Item, kind bundle.ReceiptKind, reason string) {
	if ref.IsReceipt() {
		return
	}
	if !ref.ReceiptPolicy.Has(kind) {
		return
	}
	if bundle.ReceiptPolicy(item.EmittedReceipts).Has(kind) {
		return
	}

	n.emitReceiptAlways(ref, kind, reason)

	if _, err := n.store.MarkReceiptEmitted(item.BId, kind); err != nil {
		log.WithFields(log.Fields{
			"bundle": item.Id,
			"kind":   kind,
			"error":  err,
		}).Warn("Failed to mark receipt as emitted")
	}
}

// emitReceiptAlways builds, signs and enqueues a receipt bundle without
// consulting the reference's policy. The evictor uses it for its
// "evicted" notification. Receipts are enqueued without pressing the
// evictor for room; they are small and the budget catches up next cycle.
func (n *Node) emitReceiptAlways(ref *bundle.Envelope, kind bundle.ReceiptKind, reason string) {
	rcpt, err := bundle.NewReceiptEnvelope(ref, kind, reason, n.priv)
	if err != nil {
		log.WithFields(log.Fields{
			"bundle": ref,
			"kind":   kind,
			"error":  err,
		}).Warn("Failed to build receipt")
		return
	}

	if _, err := n.store.Enqueue(&rcpt, store.QueueOutbox); err != nil && err != store.ErrDuplicate {
		log.WithFields(log.Fields{
			"bundle": ref,
			"kind":   kind,
			"error":  err,
		}).Warn("Failed to enqueue receipt")
		return
	}

	metrics.Receipts.WithLabelValues(kind.String()).Inc()

	log.WithFields(log.Fields{
		"bundle": ref,
		"kind":   kind,
		"reason": reason,
	}).Debug("Emitted receipt")
}

// observeIfReceipt inspects an admitted bundle and, when it is a receipt
// from another node, credits the peers this node fed with the referenced
// bundle: the bundle demonstrably traveled on.
func (n *Node) observeIfReceipt(e *bundle.Envelope) {
	if !e.IsReceipt() {
		return
	}

	rcpt, err := bundle.ParseReceipt(e)
	if err != nil {
		log.WithError(err).Debug("Ignoring unparsable receipt")
		return
	}

	if bytes.Equal(rcpt.Node, n.pub) {
		return
	}

	item, err := n.store.QueryId(rcpt.Ref)
	if err != nil {
		return
	}

	for _, peer := range item.PeersSeen {
		if err := n.peers.RecordEcho(peer); err != nil {
			log.WithFields(log.Fields{
				"peer":  peer,
				"error": err,
			}).Debug("Failed to credit peer echo")
		}
	}
}

// ReceiptEvent is one entry of a bundle's delivery timeline.
type ReceiptEvent struct {
	Kind   bundle.ReceiptKind `json:"kind"`
	Reason string             `json:"reason,omitempty"`
	Node   string             `json:"node"`
	At     time.Time          `json:"at"`
}

// DeliveryStatus assembles the locally observed delivery timeline of a
// bundle from the receipts referencing it, own emissions included.
func (n *Node) DeliveryStatus(bid bundle.BundleID) (events []ReceiptEvent, err error) {
	items, listErr := n.store.ListTopic(bundle.ReceiptTopic(bid), time.Time{})
	if listErr != nil {
		err = listErr
		return
	}

	for _, item := range items {
		e, loadErr := item.Load()
		if loadErr != nil {
			continue
		}

		rcpt, parseErr := bundle.ParseReceipt(&e)
		if parseErr != nil {
			continue
		}

		events = append(events, ReceiptEvent{
			Kind:   rcpt.Kind,
			Reason: rcpt.Reason,
			Node:   hex.EncodeToString(rcpt.Node),
			At:     rcpt.At,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
	return
}
