// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import "fmt"

// Queue names one of the six holding areas of the store.
type Queue string

const (
	// QueueInbox holds bundles received from a peer, not yet presented to
	// local subscribers or scheduled for forwarding.
	QueueInbox Queue = "inbox"

	// QueueOutbox holds locally produced bundles not yet offered to any
	// peer.
	QueueOutbox Queue = "outbox"

	// QueuePending holds bundles eligible to be forwarded to at least one
	// peer which has not seen them yet.
	QueuePending Queue = "pending"

	// QueueDelivered holds bundles matched to at least one local
	// subscription. They may still be forwarded while pending-eligible.
	QueueDelivered Queue = "delivered"

	// QueueExpired holds bundles past their lifetime, retained for a grace
	// period to answer duplicate checks, then purged.
	QueueExpired Queue = "expired"

	// QueueQuarantine holds bundles which failed an admission check,
	// retained briefly for diagnostics and never forwarded.
	QueueQuarantine Queue = "quarantine"
)

// Queues lists all defined queues.
func Queues() []Queue {
	return []Queue{QueueInbox, QueueOutbox, QueuePending, QueueDelivered, QueueExpired, QueueQuarantine}
}

// IsValid checks this Queue for a defined name.
func (q Queue) IsValid() bool {
	switch q {
	case QueueInbox, QueueOutbox, QueuePending, QueueDelivered, QueueExpired, QueueQuarantine:
		return true
	default:
		return false
	}
}

// IsLive is true for the queues whose payload bytes count against the
// cache budget and whose bundles may still move through the pipeline.
func (q Queue) IsLive() bool {
	switch q {
	case QueueInbox, QueueOutbox, QueuePending, QueueDelivered:
		return true
	default:
		return false
	}
}

// ParseQueue returns the Queue named by s.
func ParseQueue(s string) (Queue, error) {
	q := Queue(s)
	if !q.IsValid() {
		return "", fmt.Errorf("unknown queue %q", s)
	}
	return q, nil
}
