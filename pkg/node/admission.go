// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// errDuplicateArrival marks a re-arrival of a known bundle. It is not a
// failure: the sender still gets an ACK so it stops reoffering.
var errDuplicateArrival = errors.New("bundle is already present")

// admit runs the admission pipeline on a bundle arriving from a peer:
// size, signature, production right, expiry, hop limit, duplicate check
// and storage budget, in that order. Every failure except a duplicate
// routes the bundle to quarantine with its reason.
//
// An admitted bundle lands in inbox, is dispatched to matching local
// subscriptions and emits a received receipt if one was requested.
func (n *Node) admit(e *bundle.Envelope, fromPeer string, hops uint32, path []string) (item store.Item, err error) {
	if err = n.admissionChecks(e, hops); err != nil {
		if errors.Is(err, errDuplicateArrival) {
			metrics.Admissions.WithLabelValues(ReasonDuplicate).Inc()
			if fromPeer != "" {
				_, _ = n.store.AddPeerSeen(e.MustID(), fromPeer)
			}
			return
		}

		reason := nackReason(err)
		metrics.Admissions.WithLabelValues(reason).Inc()

		if _, qErr := n.store.Quarantine(e, reason); qErr != nil && qErr != store.ErrDuplicate {
			log.WithFields(log.Fields{
				"bundle": e,
				"error":  qErr,
			}).Warn("Failed to quarantine rejected bundle")
		}
		return
	}

	// Make room before the insert; if nothing can be evicted the bundle
	// is rejected instead of stalling the session.
	if !n.makeRoom(e.PayloadSize()) {
		metrics.Admissions.WithLabelValues(ReasonQueueFull).Inc()
		err = &ResourceError{Reason: ReasonQueueFull}
		return
	}

	if item, err = n.store.EnqueueArrival(e, store.QueueInbox, hops, path); err != nil {
		if err == store.ErrDuplicate {
			err = errDuplicateArrival
			_, _ = n.store.AddPeerSeen(e.MustID(), fromPeer)
		}
		return
	}

	metrics.Admissions.WithLabelValues("admitted").Inc()
	metrics.LiveBytes.Set(float64(n.store.LiveBytes()))

	if fromPeer != "" {
		if peerErr := n.peers.RecordDeliveredToUs(fromPeer, 1); peerErr != nil {
			log.WithFields(log.Fields{
				"peer":  fromPeer,
				"error": peerErr,
			}).Debug("Failed to update peer counter")
		}
	}

	n.emitReceipt(e, &item, bundle.ReceiptReceived, "")
	n.observeIfReceipt(e)
	n.observeIfKeyringExport(e)

	go n.dispatch(*e, item)

	return
}

// admissionChecks validates an arriving bundle without touching the store
// beyond the duplicate lookup.
func (n *Node) admissionChecks(e *bundle.Envelope, hops uint32) error {
	if e.PayloadSize() > n.config.MaxPayload {
		return &PolicyError{Reason: ReasonTooLarge}
	}

	if err := e.Verify(); err != nil {
		return &IntegrityError{Reason: ReasonBadSignature}
	}

	bid, err := e.ID()
	if err != nil {
		return &IntegrityError{Reason: ReasonIdMismatch}
	}

	if !n.keyring.CanProduce(e.Producer, e.Audience) {
		return &AuthError{Reason: ReasonAudience}
	}

	if e.IsExpired(time.Now()) {
		return &PolicyError{Reason: ReasonExpired}
	}

	if hops >= e.HopLimit+1 {
		return &PolicyError{Reason: ReasonHopLimit}
	}

	if n.store.KnowsBundle(bid) {
		return errDuplicateArrival
	}

	return nil
}

// makeRoom evicts until the given payload fits under the budget. Reports
// false if the budget cannot be met.
func (n *Node) makeRoom(payloadSize uint64) bool {
	if payloadSize > n.config.CacheBudget {
		return false
	}

	n.evictMutex.Lock()
	defer n.evictMutex.Unlock()

	for n.store.LiveBytes()+payloadSize > n.config.CacheBudget {
		if !n.evictOne() {
			return false
		}
	}
	return true
}
