// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"testing"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

func scoreItem(priority bundle.Priority, mod func(*store.Item)) store.Item {
	now := time.Now().UTC()

	item := store.Item{
		Priority:    uint8(priority),
		CreatedAt:   now,
		Expires:     now.Add(time.Hour),
		LastTouched: now,
		PayloadSize: 1024,
	}
	if mod != nil {
		mod(&item)
	}
	return item
}

func TestUtilityPriorityDominates(t *testing.T) {
	w := DefaultWeights()
	now := time.Now().UTC()

	low := scoreItem(bundle.Low, nil)
	normal := scoreItem(bundle.Normal, nil)
	emergency := scoreItem(bundle.Emergency, nil)

	if !(w.Utility(low, now) < w.Utility(normal, now)) {
		t.Fatal("low does not score below normal")
	}
	if !(w.Utility(normal, now) < w.Utility(emergency, now)) {
		t.Fatal("normal does not score below emergency")
	}
}

func TestUtilityObligationsRaiseScore(t *testing.T) {
	w := DefaultWeights()
	now := time.Now().UTC()

	fresh := scoreItem(bundle.Normal, nil)
	settled := scoreItem(bundle.Normal, func(item *store.Item) {
		item.DeliveredTo = []string{"sub-1"}
		item.PeersSeen = []string{"peer-a"}
	})

	if !(w.Utility(settled, now) < w.Utility(fresh, now)) {
		t.Fatal("a delivered and propagated bundle does not score below a fresh one")
	}
}

func TestUnevictableEmergency(t *testing.T) {
	now := time.Now().UTC()

	within := scoreItem(bundle.Emergency, nil)
	if !Unevictable(within, now) {
		t.Fatal("emergency within lifetime is evictable")
	}

	past := scoreItem(bundle.Emergency, func(item *store.Item) {
		item.Expires = now.Add(-time.Minute)
	})
	if Unevictable(past, now) {
		t.Fatal("expired emergency is unevictable")
	}

	if Unevictable(scoreItem(bundle.Normal, nil), now) {
		t.Fatal("normal bundle is unevictable")
	}
}

func TestRankForEviction(t *testing.T) {
	w := DefaultWeights()
	now := time.Now().UTC()

	awaiting := scoreItem(bundle.Low, func(item *store.Item) {
		item.Id = "awaiting"
		item.Policy = uint8(bundle.RequestDelivered)
	})
	older := scoreItem(bundle.Low, func(item *store.Item) {
		item.Id = "older"
		item.LastTouched = now.Add(-time.Hour)
	})
	newer := scoreItem(bundle.Low, func(item *store.Item) {
		item.Id = "newer"
	})

	items := []store.Item{awaiting, newer, older}
	RankForEviction(items, w, now)

	if items[0].Id != "older" {
		t.Fatalf("first victim is %q, not the older bundle", items[0].Id)
	}
	if items[2].Id != "awaiting" {
		t.Fatalf("last victim is %q, not the receipt-awaiting bundle", items[2].Id)
	}
}

func TestAwaitsDeliveryReceipt(t *testing.T) {
	item := scoreItem(bundle.Normal, func(item *store.Item) {
		item.Policy = uint8(bundle.RequestDelivered)
	})
	if !AwaitsDeliveryReceipt(item) {
		t.Fatal("requested, unemitted delivery receipt not detected")
	}

	item.EmittedReceipts = uint8(bundle.RequestDelivered)
	if AwaitsDeliveryReceipt(item) {
		t.Fatal("emitted delivery receipt still counts as awaiting")
	}

	if AwaitsDeliveryReceipt(scoreItem(bundle.Normal, nil)) {
		t.Fatal("bundle without receipt policy counts as awaiting")
	}
}
