// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

func testNode(t *testing.T, mod func(*Config)) *Node {
	cfg := Config{
		NodeId:  "test-node",
		DataDir: t.TempDir(),
	}
	if mod != nil {
		mod(&cfg)
	}

	n, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

// waitFor polls a condition, as deliveries run asynchronously.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// remoteEnvelope builds a signed envelope from a foreign producer key.
func remoteEnvelope(t *testing.T, mod func(*bundle.EnvelopeBuilder)) bundle.Envelope {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	bldr := bundle.Builder().
		Topic("chat").
		Payload([]byte("hello")).
		TTL(time.Hour)
	if mod != nil {
		mod(bldr)
	}

	e, err := bldr.Build(priv)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestSubmitAndFetch(t *testing.T) {
	n := testNode(t, nil)

	bid, err := n.Submit(SubmitRequest{
		Topic:   "chat",
		Payload: []byte("hello"),
		TTL:     time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	e, item, err := n.Fetch(bid)
	if err != nil {
		t.Fatal(err)
	}
	if e.Topic != "chat" {
		t.Fatalf("topic is %q", e.Topic)
	}
	if item.CurrentQueue() != store.QueueOutbox {
		t.Fatalf("submitted bundle is in %q, not outbox", item.Queue)
	}
	if e.Priority != bundle.Normal || e.Audience != bundle.AudiencePublic {
		t.Fatal("defaults were not applied")
	}
	if err := e.Verify(); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitValidation(t *testing.T) {
	n := testNode(t, nil)

	var vErr *ValidationError

	_, err := n.Submit(SubmitRequest{Payload: []byte("x"), TTL: time.Hour})
	if !errors.As(err, &vErr) {
		t.Fatalf("missing topic yields %v", err)
	}

	_, err = n.Submit(SubmitRequest{Topic: "chat"})
	if !errors.As(err, &vErr) {
		t.Fatalf("missing expiry yields %v", err)
	}

	_, err = n.Submit(SubmitRequest{
		Topic:     "chat",
		TTL:       time.Hour,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if !errors.As(err, &vErr) {
		t.Fatalf("both ttl and expiresAt yield %v", err)
	}
}

func TestSubmitTooLarge(t *testing.T) {
	n := testNode(t, func(cfg *Config) { cfg.MaxPayload = 16 })

	_, err := n.Submit(SubmitRequest{
		Topic:   "chat",
		Payload: make([]byte, 17),
		TTL:     time.Hour,
	})

	var pErr *PolicyError
	if !errors.As(err, &pErr) || pErr.Reason != ReasonTooLarge {
		t.Fatalf("oversized payload yields %v", err)
	}
}

func TestAdmitBadSignature(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, nil)
	e.Payload = []byte("tampered")

	_, err := n.admit(&e, "peer-a", 1, []string{"peer-a"})

	var iErr *IntegrityError
	if !errors.As(err, &iErr) {
		t.Fatalf("tampered bundle yields %v", err)
	}

	// The rejected bundle is quarantined with its reason.
	items, listErr := n.Store().ListQueue(store.QueueQuarantine, 0)
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(items) != 1 || items[0].QuarantineReason != ReasonBadSignature {
		t.Fatalf("quarantine holds %d items, reason %q", len(items), items[0].QuarantineReason)
	}
}

func TestAdmitExpiredOnArrival(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, func(bldr *bundle.EnvelopeBuilder) {
		bldr.CreatedAt(time.Now().Add(-2 * time.Hour))
	})

	_, err := n.admit(&e, "peer-a", 1, nil)

	var pErr *PolicyError
	if !errors.As(err, &pErr) || pErr.Reason != ReasonExpired {
		t.Fatalf("expired bundle yields %v", err)
	}
}

func TestAdmitHopLimitExceeded(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, func(bldr *bundle.EnvelopeBuilder) {
		bldr.HopLimit(2)
	})

	_, err := n.admit(&e, "peer-a", 3, nil)

	var pErr *PolicyError
	if !errors.As(err, &pErr) || pErr.Reason != ReasonHopLimit {
		t.Fatalf("hop-exhausted bundle yields %v", err)
	}
}

func TestAdmitUnauthorizedAudience(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, func(bldr *bundle.EnvelopeBuilder) {
		bldr.Audience(bundle.AudienceTrusted)
	})

	_, err := n.admit(&e, "peer-a", 1, nil)

	var aErr *AuthError
	if !errors.As(err, &aErr) {
		t.Fatalf("unauthorized producer yields %v", err)
	}
}

func TestAdmitDuplicate(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, nil)

	if _, err := n.admit(&e, "peer-a", 1, []string{"peer-a"}); err != nil {
		t.Fatal(err)
	}

	_, err := n.admit(&e, "peer-b", 1, []string{"peer-b"})
	if !errors.Is(err, errDuplicateArrival) {
		t.Fatalf("re-arrival yields %v", err)
	}

	// Both senders are known to hold the bundle now.
	item, queryErr := n.Store().QueryId(e.MustID())
	if queryErr != nil {
		t.Fatal(queryErr)
	}
	if !item.HasPeerSeen("peer-a") || !item.HasPeerSeen("peer-b") {
		t.Fatalf("peersSeen is %v", item.PeersSeen)
	}
}

func TestAdmitSeedsHopDistance(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, nil)

	item, err := n.admit(&e, "peer-b", 2, []string{"peer-a", "peer-b"})
	if err != nil {
		t.Fatal(err)
	}
	if item.HopsSeen != 2 {
		t.Fatalf("hopsSeen is %d, not 2", item.HopsSeen)
	}
	if !item.HasPeerSeen("peer-a") || !item.HasPeerSeen("peer-b") {
		t.Fatalf("peersSeen is %v", item.PeersSeen)
	}
}

func TestDispatchDeliversAndMoves(t *testing.T) {
	n := testNode(t, nil)

	received := make(chan bundle.Envelope, 1)
	n.Subscribe("chat", func(e bundle.Envelope) error {
		received <- e
		return nil
	})

	e := remoteEnvelope(t, func(bldr *bundle.EnvelopeBuilder) {
		bldr.ReceiptPolicy(bundle.RequestDelivered)
	})
	if _, err := n.admit(&e, "peer-a", 1, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if !got.MustID().Equal(e.MustID()) {
			t.Fatal("delivered envelope differs")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription was not called")
	}

	waitFor(t, "move to delivered", func() bool {
		item, err := n.Store().QueryId(e.MustID())
		return err == nil && item.CurrentQueue() == store.QueueDelivered
	})

	// Receipt causality: the delivered receipt exists only now that the
	// bundle rests in delivered.
	waitFor(t, "delivered receipt", func() bool {
		events, err := n.DeliveryStatus(e.MustID())
		if err != nil {
			return false
		}
		for _, event := range events {
			if event.Kind == bundle.ReceiptDelivered {
				return true
			}
		}
		return false
	})
}

func TestDispatchUnmatchedGoesPending(t *testing.T) {
	n := testNode(t, nil)

	e := remoteEnvelope(t, nil)
	if _, err := n.admit(&e, "peer-a", 1, nil); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "move to pending", func() bool {
		item, err := n.Store().QueryId(e.MustID())
		return err == nil && item.CurrentQueue() == store.QueuePending
	})
}

func TestDeliveryRetries(t *testing.T) {
	n := testNode(t, nil)

	calls := 0
	done := make(chan struct{})
	n.Subscribe("chat", func(bundle.Envelope) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("not yet")
		}
		close(done)
		return nil
	})

	e := remoteEnvelope(t, nil)
	if _, err := n.admit(&e, "peer-a", 1, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not retried to success")
	}
}

func TestSweepExpiryAndGrace(t *testing.T) {
	n := testNode(t, func(cfg *Config) {
		cfg.GraceWindow = time.Second
	})

	bid, err := n.Submit(SubmitRequest{
		Topic:      "chat",
		Payload:    []byte("short-lived"),
		TTL:        50 * time.Millisecond,
		NoReceipts: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	n.sweep()

	item, err := n.Store().QueryId(bid)
	if err != nil {
		t.Fatal(err)
	}
	if item.CurrentQueue() != store.QueueExpired {
		t.Fatalf("bundle is in %q after the sweep", item.Queue)
	}
	if !n.Store().KnowsBundle(bid) {
		t.Fatal("expired bundle is unknown within grace")
	}

	time.Sleep(1100 * time.Millisecond)
	n.sweep()

	// The grace has passed: the id is purged and a re-arrival would be
	// admitted like any fresh bundle.
	if _, err := n.Store().QueryId(bid); err != store.ErrNotFound {
		t.Fatalf("purged bundle is still present: %v", err)
	}
	if n.Store().KnowsBundle(bid) {
		t.Fatal("purged expired id still counts as duplicate")
	}
}

func TestBudgetPressure(t *testing.T) {
	n := testNode(t, func(cfg *Config) {
		cfg.CacheBudget = 10 * 1024
	})

	lowIds := make([]bundle.BundleID, 0, 10)
	for i := 0; i < 10; i++ {
		payload := make([]byte, 1024)
		payload[0] = byte(i)

		bid, err := n.Submit(SubmitRequest{
			Topic:      "bulk",
			Payload:    payload,
			TTL:        time.Hour,
			Priority:   bundle.Low,
			NoReceipts: true,
		})
		if err != nil {
			t.Fatal(err)
		}
		lowIds = append(lowIds, bid)

		// Distinct lastTouched instants settle the eviction tie-break.
		time.Sleep(2 * time.Millisecond)
	}

	// One more bundle overflows the budget; the oldest low bundle gives
	// way.
	if _, err := n.Submit(SubmitRequest{
		Topic:      "chat",
		Payload:    make([]byte, 1024),
		TTL:        time.Hour,
		NoReceipts: true,
	}); err != nil {
		t.Fatal(err)
	}

	if live := n.Store().LiveBytes(); live > 10*1024 {
		t.Fatalf("live bytes %d exceed the budget", live)
	}

	// The evicted id stays duplicate-suppressed, but its row and payload
	// are gone.
	if _, err := n.Store().QueryId(lowIds[0]); err != store.ErrNotFound {
		t.Fatalf("oldest low bundle survived the pressure: %v", err)
	}

	// An emergency bundle evicts another low one and is itself retained.
	emergencyId, err := n.Submit(SubmitRequest{
		Topic:      "alert",
		Payload:    make([]byte, 1024),
		TTL:        time.Hour,
		Priority:   bundle.Emergency,
		NoReceipts: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := n.Store().QueryId(emergencyId); err != nil {
		t.Fatalf("emergency bundle was not admitted: %v", err)
	}
	if _, err := n.Store().QueryId(lowIds[1]); err != store.ErrNotFound {
		t.Fatalf("second-oldest low bundle survived the pressure: %v", err)
	}
}

func TestEmergencyNeverEvicted(t *testing.T) {
	n := testNode(t, func(cfg *Config) {
		cfg.CacheBudget = 2 * 1024
	})

	emergencyId, err := n.Submit(SubmitRequest{
		Topic:      "alert",
		Payload:    make([]byte, 1024),
		TTL:        time.Hour,
		Priority:   bundle.Emergency,
		NoReceipts: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := n.Submit(SubmitRequest{
			Topic:      "bulk",
			Payload:    make([]byte, 1024),
			TTL:        time.Hour,
			Priority:   bundle.Low,
			NoReceipts: true,
		}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := n.Store().QueryId(emergencyId); err != nil {
		t.Fatalf("emergency bundle fell to cache pressure: %v", err)
	}
}

func TestQueueFullWhenNothingEvictable(t *testing.T) {
	n := testNode(t, func(cfg *Config) {
		cfg.CacheBudget = 2 * 1024
	})

	if _, err := n.Submit(SubmitRequest{
		Topic:      "alert",
		Payload:    make([]byte, 2048),
		TTL:        time.Hour,
		Priority:   bundle.Emergency,
		NoReceipts: true,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := n.Submit(SubmitRequest{
		Topic:      "chat",
		Payload:    make([]byte, 1024),
		TTL:        time.Hour,
		NoReceipts: true,
	})

	var rErr *ResourceError
	if !errors.As(err, &rErr) || rErr.Reason != ReasonQueueFull {
		t.Fatalf("full queue yields %v", err)
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"chat", "chat", true},
		{"chat", "chatter", false},
		{"chat", "news", false},
		{"*", "anything", true},
		{"gift/*", "gift", true},
		{"gift/*", "gift/offers", true},
		{"gift/*", "gift/offers/food", true},
		{"gift/*", "gifts", false},
	}

	for _, tt := range tests {
		if got := matchTopic(tt.filter, tt.topic); got != tt.want {
			t.Fatalf("matchTopic(%q, %q) = %v", tt.filter, tt.topic, got)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, name := range []string{"producer", "bridge", "library", "constrained"} {
		if _, err := ParseRole(name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ParseRole("supervisor"); err == nil {
		t.Fatal("unknown role was accepted")
	}

	if RoleBridge.CacheBudget() <= RoleProducer.CacheBudget() {
		t.Fatal("bridge budget is not larger than producer budget")
	}
	if !RoleConstrained.ForwardsOnlyEmergency() {
		t.Fatal("constrained role forwards everything")
	}
}
