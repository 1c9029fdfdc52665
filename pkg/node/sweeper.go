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

// sweep is the TTL sweeper's tick: move every expired live bundle to the
// expired queue, emit requested expired receipts, and purge what outlived
// its grace or diagnostic window. The work per tick is bounded by the
// expiry index, not the store size.
func (n *Node) sweep() {
	now := time.Now().UTC()

	expiring, err := n.store.QueryExpiring(now)
	if err != nil {
		log.WithError(err).Warn("Sweeper failed to query expiring bundles")
		return
	}

	for _, item := range expiring {
		// The envelope is needed for the receipt and gone after a purge,
		// so load it before anything moves.
		e, loadErr := item.Load()

		if moveErr := n.store.Move(item.BId, item.CurrentQueue(), store.QueueExpired); moveErr != nil {
			// A concurrent mover got there first; the next tick retries
			// whatever is left.
			continue
		}

		metrics.Expirations.Inc()
		log.WithFields(log.Fields{
			"bundle": item.Id,
			"queue":  item.Queue,
		}).Debug("Sweeper expired bundle")

		if loadErr == nil {
			n.emitReceipt(&e, &item, bundle.ReceiptExpired, "")
		}
	}

	purgeable, err := n.store.QueryPurgeable(now, n.config.GraceWindow, n.config.DiagnosticWindow)
	if err != nil {
		log.WithError(err).Warn("Sweeper failed to query purgeable bundles")
		return
	}

	for _, item := range purgeable {
		if purgeErr := n.store.Purge(item.BId); purgeErr != nil {
			log.WithFields(log.Fields{
				"bundle": item.Id,
				"error":  purgeErr,
			}).Warn("Sweeper failed to purge bundle")
		}
	}

	metrics.LiveBytes.Set(float64(n.store.LiveBytes()))
}
