// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/routing"
)

// enforceBudget is the evictor's proactive tick. The reactive path runs
// through makeRoom on every admission.
func (n *Node) enforceBudget() {
	n.evictMutex.Lock()
	defer n.evictMutex.Unlock()

	for n.store.LiveBytes() > n.config.CacheBudget {
		if !n.evictOne() {
			break
		}
	}

	metrics.LiveBytes.Set(float64(n.store.LiveBytes()))
}

// evictOne removes the lowest-utility live bundle. Emergency bundles
// within their lifetime are never victims; bundles awaiting a requested
// delivery receipt fall last. Reports false when nothing is evictable.
func (n *Node) evictOne() bool {
	now := time.Now().UTC()

	items, err := n.store.ListLive()
	if err != nil {
		log.WithError(err).Warn("Evictor failed to list live bundles")
		return false
	}

	candidates := items[:0]
	for _, item := range items {
		if !routing.Unevictable(item, now) {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		return false
	}

	routing.RankForEviction(candidates, n.weights, now)
	victim := candidates[0]

	e, loadErr := victim.Load()

	if _, err := n.store.Evict(victim.BId); err != nil {
		log.WithFields(log.Fields{
			"bundle": victim.Id,
			"error":  err,
		}).Warn("Evictor failed to remove bundle")
		return false
	}

	metrics.Evictions.Inc()

	// The deleted record is diagnostic only; producers learn about the
	// loss through the receipt below, if they asked for delivery news.
	log.WithFields(log.Fields{
		"bundle":   victim.Id,
		"kind":     bundle.ReceiptDeleted,
		"queue":    victim.Queue,
		"priority": victim.Priority,
		"size":     victim.PayloadSize,
	}).Info("Evicted bundle under cache pressure")

	if loadErr == nil && routing.AwaitsDeliveryReceipt(victim) {
		n.emitReceiptAlways(&e, bundle.ReceiptExpired, "evicted")
	}

	return true
}
