// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// SubmitRequest is a producer's submission. Exactly one of TTL and
// ExpiresAt must be set. A zero HopLimit falls back to the bundle
// package's default; a zero ReceiptPolicy falls back to the role's preset
// unless NoReceipts is set.
type SubmitRequest struct {
	Priority      bundle.Priority
	Audience      bundle.Audience
	Topic         string
	PayloadType   string
	Payload       []byte
	TTL           time.Duration
	ExpiresAt     time.Time
	HopLimit      uint32
	ReceiptPolicy bundle.ReceiptPolicy
	NoReceipts    bool
}

// Submit signs and stores a locally produced bundle in outbox. The call
// returns once the bundle is durable; forwarding happens on the next peer
// contact.
func (n *Node) Submit(req SubmitRequest) (bid bundle.BundleID, err error) {
	if req.Topic == "" {
		err = &ValidationError{Field: "topic", Reason: "must not be empty"}
		return
	}
	if req.TTL < 0 {
		err = &ValidationError{Field: "ttl", Reason: "must not be negative"}
		return
	}
	if (req.TTL == 0) == req.ExpiresAt.IsZero() {
		err = &ValidationError{Field: "ttl", Reason: "exactly one of ttl and expiresAt must be set"}
		return
	}
	if uint64(len(req.Payload)) > n.config.MaxPayload {
		err = &PolicyError{Reason: ReasonTooLarge}
		return
	}

	if !n.keyring.CanProduce(n.pub, req.Audience) {
		err = &AuthError{Reason: ReasonAudience}
		return
	}

	bldr := bundle.Builder().
		Topic(req.Topic).
		Payload(req.Payload)

	if req.Priority != 0 {
		bldr.Priority(req.Priority)
	}
	bldr.Audience(req.Audience)
	if req.PayloadType != "" {
		bldr.PayloadType(req.PayloadType)
	}
	if req.HopLimit != 0 {
		bldr.HopLimit(req.HopLimit)
	}
	if req.TTL != 0 {
		bldr.TTL(req.TTL)
	} else {
		bldr.ExpiresAt(req.ExpiresAt)
	}

	switch {
	case req.ReceiptPolicy != 0:
		bldr.ReceiptPolicy(req.ReceiptPolicy)
	case !req.NoReceipts:
		bldr.ReceiptPolicy(n.config.Role.DefaultReceiptPolicy())
	}

	e, buildErr := bldr.Build(n.priv)
	if buildErr != nil {
		err = &ValidationError{Field: "envelope", Reason: buildErr.Error()}
		return
	}

	if !n.makeRoom(e.PayloadSize()) {
		err = &ResourceError{Reason: ReasonQueueFull}
		return
	}

	if _, err = n.store.Enqueue(&e, store.QueueOutbox); err != nil {
		return
	}

	bid = e.MustID()
	metrics.Submissions.Inc()
	metrics.LiveBytes.Set(float64(n.store.LiveBytes()))

	log.WithFields(log.Fields{
		"bundle":   bid,
		"topic":    e.Topic,
		"priority": e.Priority,
	}).Info("Submitted bundle")

	return
}

// Fetch returns a stored bundle and its metadata by id.
func (n *Node) Fetch(bid bundle.BundleID) (e bundle.Envelope, item store.Item, err error) {
	if item, err = n.store.QueryId(bid); err != nil {
		return
	}

	e, err = item.Load()
	return
}
