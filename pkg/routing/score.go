// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sort"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// Weights parameterize the eviction utility score.
type Weights struct {
	Priority    float64
	Age         float64
	Undelivered float64
	Unforwarded float64
	Size        float64

	// MaxPayload normalizes the size penalty.
	MaxPayload uint64
}

// DefaultWeights are tuned so priority dominates, freshness and pending
// obligations matter, and payload size only breaks near-ties.
func DefaultWeights() Weights {
	return Weights{
		Priority:    1.0,
		Age:         1.0,
		Undelivered: 1.0,
		Unforwarded: 1.0,
		Size:        0.5,
		MaxPayload:  1 << 20,
	}
}

// Utility scores a live bundle for the evictor; lower scores are evicted
// first.
func (w Weights) Utility(item store.Item, now time.Time) float64 {
	u := w.Priority * bundle.Priority(item.Priority).Weight()

	if lifetime := item.Expires.Sub(item.CreatedAt); lifetime > 0 {
		age := now.Sub(item.CreatedAt)
		if age < 0 {
			age = 0
		}
		remaining := 1 - float64(age)/float64(lifetime)
		if remaining < 0 {
			remaining = 0
		}
		u += w.Age * remaining
	}

	if len(item.DeliveredTo) == 0 {
		u += w.Undelivered
	}
	if len(item.PeersSeen) == 0 {
		u += w.Unforwarded
	}

	if w.MaxPayload > 0 {
		u -= w.Size * float64(item.PayloadSize) / float64(w.MaxPayload)
	}

	return u
}

// Unevictable reports whether the bundle may never fall to cache pressure.
// Emergency bundles within their lifetime only die by expiry.
func Unevictable(item store.Item, now time.Time) bool {
	return bundle.Priority(item.Priority) == bundle.Emergency &&
		now.Before(item.Expires)
}

// AwaitsDeliveryReceipt reports whether the producer asked for a delivered
// receipt that this node has not emitted yet. Such bundles are kept as
// long as anything else can be evicted instead.
func AwaitsDeliveryReceipt(item store.Item) bool {
	policy := item.ReceiptPolicy()
	emitted := bundle.ReceiptPolicy(item.EmittedReceipts)

	return policy.Has(bundle.ReceiptDelivered) && !emitted.Has(bundle.ReceiptDelivered)
}

// RankForEviction orders live bundles into eviction order: unprotected
// low-utility bundles first, bundles awaiting a delivery receipt last,
// ties broken by the older lastTouched. Unevictable bundles must be
// filtered out by the caller.
func RankForEviction(items []store.Item, w Weights, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]

		if fa, fb := AwaitsDeliveryReceipt(a), AwaitsDeliveryReceipt(b); fa != fb {
			return fb
		}

		ua, ub := w.Utility(a, now), w.Utility(b, now)
		if ua != ub {
			return ua < ub
		}
		return a.LastTouched.Before(b.LastTouched)
	})
}
