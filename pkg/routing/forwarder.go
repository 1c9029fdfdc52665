// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"bytes"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/keyring"
	"github.com/driftmesh/driftmesh-go/pkg/peer"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// forwardQueues are the queues the Forwarder draws from. Bundles in
// delivered may still travel on if they have peers left to visit.
var forwardQueues = []store.Queue{store.QueueOutbox, store.QueuePending, store.QueueDelivered}

// Forwarder selects bundles for transmission to a peer.
type Forwarder struct {
	store   *store.Store
	keyring *keyring.Keyring
	peers   *peer.Table
}

// NewForwarder creates a Forwarder on top of the given store, keyring and
// peer table.
func NewForwarder(s *store.Store, kr *keyring.Keyring, peers *peer.Table) *Forwarder {
	return &Forwarder{
		store:   s,
		keyring: kr,
		peers:   peers,
	}
}

// SelectFor returns the bundles to offer the given peer, ordered for
// transmission, with their payload bytes summing to at most budgetBytes.
//
// A bundle is excluded when its hop limit is used up, when the peer is
// already known to hold it, when the peer's key may not read its audience,
// or when it sits outside the forwardable queues. The remainder is ordered
// by priority, then by the nearest expiry, then by how few peers hold it
// yet, with the bundle id as the final deterministic tie-break.
func (fwd *Forwarder) SelectFor(peerId string, peerKey []byte, budgetBytes uint64) (items []store.Item, err error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	var candidates []store.Item

	for _, queue := range forwardQueues {
		queued, queueErr := fwd.store.ListQueue(queue, 0)
		if queueErr != nil {
			err = queueErr
			return
		}

		for _, item := range queued {
			if !seen.Add(item.Id) {
				continue
			}
			if item.HopsSeen >= item.HopLimit+1 {
				continue
			}
			if item.HasPeerSeen(peerId) {
				continue
			}
			if !fwd.keyring.CanReceive(peerKey, bundle.Audience(item.Audience)) {
				continue
			}

			candidates = append(candidates, item)
		}
	}

	sortForTransmission(candidates)

	var used uint64
	for _, item := range candidates {
		if used+item.PayloadSize > budgetBytes {
			continue
		}

		used += item.PayloadSize
		items = append(items, item)
	}

	log.WithFields(log.Fields{
		"peer":       peerId,
		"candidates": len(candidates),
		"selected":   len(items),
		"bytes":      used,
	}).Debug("Selected bundles for peer")

	return
}

// sortForTransmission orders candidates by priority descending, expiry
// ascending, propagation deficit descending and bundle id ascending. The
// id key makes the order reproducible across nodes.
func sortForTransmission(items []store.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]

		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.Expires.Equal(b.Expires) {
			return a.Expires.Before(b.Expires)
		}
		if la, lb := len(a.PeersSeen), len(b.PeersSeen); la != lb {
			return la < lb
		}
		return bytes.Compare(a.BId[:], b.BId[:]) < 0
	})
}

// OnPeerAcked records that the peer now holds the bundle: one more hop is
// used up, the peer joins peersSeen and its transfer counter advances.
func (fwd *Forwarder) OnPeerAcked(peerId string, bid bundle.BundleID) (item store.Item, err error) {
	if item, err = fwd.store.AddPeerSeen(bid, peerId); err != nil {
		return
	}
	if item, err = fwd.store.IncrementHops(bid); err != nil {
		return
	}

	if peerErr := fwd.peers.RecordDeliveredToThem(peerId, 1); peerErr != nil {
		log.WithFields(log.Fields{
			"peer":   peerId,
			"bundle": bid,
			"error":  peerErr,
		}).Warn("Failed to update peer transfer counter")
	}

	return
}
