// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/contact"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// The Node is the session handler of every peer contact; the methods below
// implement contact.Handler.

// LocalHello describes this node for the opening HELLO.
func (n *Node) LocalHello() contact.Hello {
	return contact.Hello{
		NodeId:         n.config.NodeId,
		PublicKey:      n.pub,
		Version:        contact.ProtocolVersion,
		Now:            time.Now().UTC(),
		AvailableBytes: n.AvailableBytes(),
	}
}

// OnPeerHello upserts the peer record on contact.
func (n *Node) OnPeerHello(h contact.Hello) {
	if _, err := n.peers.Seen(h.NodeId, h.PublicKey); err != nil {
		log.WithFields(log.Fields{
			"peer":  h.NodeId,
			"error": err,
		}).Warn("Failed to record peer contact")
	}
}

// OfferFor selects this node's forwardable bundles for the peer. A
// constrained role offers emergencies only.
func (n *Node) OfferFor(peerId string, peerKey []byte, budget uint64) (entries []contact.OfferEntry, err error) {
	items, selectErr := n.forwarder.SelectFor(peerId, peerKey, budget)
	if selectErr != nil {
		err = selectErr
		return
	}

	for _, item := range items {
		if n.config.Role.ForwardsOnlyEmergency() && bundle.Priority(item.Priority) != bundle.Emergency {
			continue
		}

		entries = append(entries, contact.OfferEntry{
			Id:       item.BId,
			Priority: item.Priority,
			Size:     item.PayloadSize,
			Topic:    item.Topic,
		})
	}
	return
}

// Wants reduces a peer's offer to the bundles this node lacks.
func (n *Node) Wants(entries []contact.OfferEntry) (ids []bundle.BundleID) {
	for _, entry := range entries {
		if entry.Size > n.config.MaxPayload {
			continue
		}
		if !n.store.KnowsBundle(entry.Id) {
			ids = append(ids, entry.Id)
		}
	}
	return
}

// FetchDeliver loads a wanted bundle for transmission, carrying the hop
// distance after this forward and the path including this node.
func (n *Node) FetchDeliver(id bundle.BundleID) (d contact.Deliver, err error) {
	item, queryErr := n.store.QueryId(id)
	if queryErr != nil {
		err = queryErr
		return
	}

	e, loadErr := item.Load()
	if loadErr != nil {
		err = loadErr
		return
	}

	raw, rawErr := e.MarshalBinary()
	if rawErr != nil {
		err = rawErr
		return
	}

	path := make([]string, 0, len(item.PeersSeen)+1)
	path = append(path, item.PeersSeen...)
	path = append(path, n.config.NodeId)

	d = contact.Deliver{
		Hops:     uint64(item.HopsSeen) + 1,
		Path:     path,
		Envelope: raw,
	}
	return
}

// Admit runs the admission pipeline on a delivered bundle. Duplicates are
// acknowledged so the sender updates its peersSeen.
func (n *Node) Admit(peerId string, d contact.Deliver) *contact.Nack {
	var e bundle.Envelope
	if err := e.UnmarshalBinary(d.Envelope); err != nil {
		return &contact.Nack{Reason: ReasonMalformed}
	}

	metrics.Transfers.WithLabelValues("in").Inc()

	_, err := n.admit(&e, peerId, uint32(d.Hops), d.Path)
	if err == nil || errors.Is(err, errDuplicateArrival) {
		return nil
	}

	bid, idErr := e.ID()
	if idErr != nil {
		return &contact.Nack{Reason: ReasonIdMismatch}
	}
	return &contact.Nack{Id: bid, Reason: nackReason(err)}
}

// OnPeerAcked records a successful hand-over: the forwarder updates hop
// and peer state, a first forward moves the bundle from outbox to
// pending, and a forwarded receipt is emitted if requested.
func (n *Node) OnPeerAcked(peerId string, id bundle.BundleID) {
	item, err := n.forwarder.OnPeerAcked(peerId, id)
	if err != nil {
		log.WithFields(log.Fields{
			"peer":   peerId,
			"bundle": id,
			"error":  err,
		}).Warn("Failed to process peer ack")
		return
	}

	metrics.Transfers.WithLabelValues("out").Inc()

	if item.CurrentQueue() == store.QueueOutbox {
		if err := n.store.Move(id, store.QueueOutbox, store.QueuePending); err != nil {
			log.WithFields(log.Fields{
				"bundle": id,
				"error":  err,
			}).Debug("Failed to move bundle out of outbox")
		}
	}

	if e, loadErr := item.Load(); loadErr == nil {
		n.emitReceipt(&e, &item, bundle.ReceiptForwarded, "")
	}
}

// OnPeerNacked logs a rejected delivery. The reason is coarse by design.
func (n *Node) OnPeerNacked(peerId string, nack contact.Nack) {
	log.WithFields(log.Fields{
		"peer":   peerId,
		"bundle": nack.Id,
		"reason": nack.Reason,
	}).Info("Peer rejected delivery")
}
