// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

func testStore(t *testing.T) *Store {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEnvelope(t *testing.T, topic string, ttl time.Duration) bundle.Envelope {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	e, err := bundle.Builder().
		Topic(topic).
		Payload([]byte("payload of " + topic)).
		TTL(ttl).
		Build(priv)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestStoreEnqueueDuplicate(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", time.Hour)

	item, err := s.Enqueue(&e, QueueOutbox)
	if err != nil {
		t.Fatal(err)
	}
	if item.CurrentQueue() != QueueOutbox {
		t.Fatalf("item is in %q", item.Queue)
	}
	if item.HopsSeen != 0 {
		t.Fatalf("fresh item has %d hops seen", item.HopsSeen)
	}

	if _, err := s.Enqueue(&e, QueueInbox); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if !s.KnowsBundle(e.MustID()) {
		t.Fatal("enqueued bundle is unknown")
	}

	loaded, err := item.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.MustID().Equal(e.MustID()) {
		t.Fatal("envelope changed after loading")
	}
}

func TestStoreMoveCompareAndSet(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", time.Hour)

	if _, err := s.Enqueue(&e, QueueInbox); err != nil {
		t.Fatal(err)
	}
	bid := e.MustID()

	if err := s.Move(bid, QueueInbox, QueuePending); err != nil {
		t.Fatal(err)
	}

	// A second mover expecting the old queue must lose.
	if err := s.Move(bid, QueueInbox, QueueDelivered); err == nil {
		t.Fatal("move with stale source queue succeeded")
	}

	item, err := s.QueryId(bid)
	if err != nil {
		t.Fatal(err)
	}
	if item.CurrentQueue() != QueuePending {
		t.Fatalf("item is in %q", item.Queue)
	}
}

func TestStoreQueueExclusivity(t *testing.T) {
	s := testStore(t)

	for i, queue := range []Queue{QueueInbox, QueueOutbox, QueuePending} {
		e := testEnvelope(t, "topic", time.Duration(i+1)*time.Hour)
		if _, err := s.Enqueue(&e, queue); err != nil {
			t.Fatal(err)
		}
	}

	total := 0
	for _, queue := range Queues() {
		items, err := s.ListQueue(queue, 0)
		if err != nil {
			t.Fatal(err)
		}
		total += len(items)
	}
	if total != 3 {
		t.Fatalf("queues hold %d items in sum, not 3", total)
	}
}

func TestStoreLiveBytes(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", time.Hour)

	if _, err := s.Enqueue(&e, QueueInbox); err != nil {
		t.Fatal(err)
	}
	if lb := s.LiveBytes(); lb != e.PayloadSize() {
		t.Fatalf("live bytes are %d, not %d", lb, e.PayloadSize())
	}

	if err := s.Move(e.MustID(), QueueInbox, QueueExpired); err != nil {
		t.Fatal(err)
	}
	if lb := s.LiveBytes(); lb != 0 {
		t.Fatalf("live bytes are %d after expiry move", lb)
	}
}

func TestStoreMetadataUpdates(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", time.Hour)

	if _, err := s.Enqueue(&e, QueuePending); err != nil {
		t.Fatal(err)
	}
	bid := e.MustID()

	if _, err := s.AddPeerSeen(bid, "peer-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPeerSeen(bid, "peer-a"); err != nil {
		t.Fatal(err)
	}
	item, err := s.AddPeerSeen(bid, "peer-b")
	if err != nil {
		t.Fatal(err)
	}
	if l := len(item.PeersSeen); l != 2 {
		t.Fatalf("peersSeen has %d entries, not 2", l)
	}

	if item, err = s.IncrementHops(bid); err != nil {
		t.Fatal(err)
	}
	if item.HopsSeen != 1 {
		t.Fatalf("hopsSeen is %d, not 1", item.HopsSeen)
	}

	if item, err = s.AddDeliveredTo(bid, "sub-1"); err != nil {
		t.Fatal(err)
	}
	if l := len(item.DeliveredTo); l != 1 {
		t.Fatalf("deliveredTo has %d entries, not 1", l)
	}
}

func TestStoreExpiryAndPurge(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", 50*time.Millisecond)

	if _, err := s.Enqueue(&e, QueueInbox); err != nil {
		t.Fatal(err)
	}
	bid := e.MustID()

	time.Sleep(100 * time.Millisecond)

	expiring, err := s.QueryExpiring(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(expiring) != 1 {
		t.Fatalf("found %d expiring items, not 1", len(expiring))
	}

	if err := s.Move(bid, QueueInbox, QueueExpired); err != nil {
		t.Fatal(err)
	}

	// Within grace the id stays a duplicate.
	if !s.KnowsBundle(bid) {
		t.Fatal("expired bundle is unknown within grace")
	}

	purgeable, err := s.QueryPurgeable(time.Now().Add(time.Hour), time.Minute, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(purgeable) != 1 {
		t.Fatalf("found %d purgeable items, not 1", len(purgeable))
	}

	if err := s.Purge(bid); err != nil {
		t.Fatal(err)
	}
	if err := s.Purge(bid); err != nil {
		t.Fatalf("purge is not idempotent: %v", err)
	}

	// The bundle expired before it was purged, so its re-arrival is not a
	// duplicate anymore.
	if s.KnowsBundle(bid) {
		t.Fatal("purged expired bundle still counts as duplicate")
	}
}

func TestStorePurgeFromLiveQueue(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", time.Hour)

	if _, err := s.Enqueue(&e, QueueInbox); err != nil {
		t.Fatal(err)
	}
	if err := s.Purge(e.MustID()); err == nil {
		t.Fatal("purging from a live queue succeeded")
	}
}

func TestStoreEvictGrace(t *testing.T) {
	s := testStore(t)
	e := testEnvelope(t, "chat", time.Hour)

	if _, err := s.Enqueue(&e, QueuePending); err != nil {
		t.Fatal(err)
	}
	bid := e.MustID()

	if _, err := s.Evict(bid); err != nil {
		t.Fatal(err)
	}
	if lb := s.LiveBytes(); lb != 0 {
		t.Fatalf("live bytes are %d after eviction", lb)
	}

	// The bundle is still within its lifetime: circulating copies must not
	// re-enter.
	if !s.KnowsBundle(bid) {
		t.Fatal("evicted bundle is not duplicate-suppressed")
	}
	if _, err := s.Enqueue(&e, QueueInbox); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestStoreListTopic(t *testing.T) {
	s := testStore(t)

	for _, topic := range []string{"chat", "chat", "news"} {
		e := testEnvelope(t, topic, time.Hour)
		if _, err := s.Enqueue(&e, QueueInbox); err != nil {
			t.Fatal(err)
		}
	}

	items, err := s.ListTopic("chat", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("found %d chat items, not 2", len(items))
	}

	items, err = s.ListTopic("chat", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("found %d future chat items, not 0", len(items))
	}
}
