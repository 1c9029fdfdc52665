// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/keyring"
	"github.com/driftmesh/driftmesh-go/pkg/peer"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

type testRig struct {
	store   *store.Store
	keyring *keyring.Keyring
	peers   *peer.Table
	fwd     *Forwarder
	priv    ed25519.PrivateKey
}

func newTestRig(t *testing.T) *testRig {
	s, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	kr, err := keyring.NewKeyring(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := peer.NewTable(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = kr.Close()
		_ = tbl.Close()
	})

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	return &testRig{
		store:   s,
		keyring: kr,
		peers:   tbl,
		fwd:     NewForwarder(s, kr, tbl),
		priv:    priv,
	}
}

func (rig *testRig) enqueue(t *testing.T, queue store.Queue, mod func(*bundle.EnvelopeBuilder)) bundle.Envelope {
	b := bundle.Builder().
		Topic("topic").
		Payload(make([]byte, 64)).
		TTL(time.Hour)
	if mod != nil {
		mod(b)
	}

	e, err := b.Build(rig.priv)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rig.store.Enqueue(&e, queue); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestForwarderEmergencyPreempts(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 50; i++ {
		rig.enqueue(t, store.QueuePending, func(b *bundle.EnvelopeBuilder) {
			b.Priority(bundle.Low).Payload([]byte{byte(i)})
		})
	}
	emergency := rig.enqueue(t, store.QueueOutbox, func(b *bundle.EnvelopeBuilder) {
		b.Priority(bundle.Emergency)
	})

	items, err := rig.fwd.SelectFor("peer-b", nil, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 51 {
		t.Fatalf("selected %d bundles, not 51", len(items))
	}
	if !items[0].BId.Equal(emergency.MustID()) {
		t.Fatal("emergency bundle is not first")
	}
}

func TestForwarderAudienceFilter(t *testing.T) {
	rig := newTestRig(t)

	peerKey := make([]byte, ed25519.PublicKeySize)
	if err := rig.keyring.Add(keyring.RingLocal, peerKey, ""); err != nil {
		t.Fatal(err)
	}

	rig.enqueue(t, store.QueueOutbox, func(b *bundle.EnvelopeBuilder) {
		b.Audience(bundle.AudienceTrusted)
	})
	public := rig.enqueue(t, store.QueueOutbox, func(b *bundle.EnvelopeBuilder) {
		b.Audience(bundle.AudiencePublic).Payload([]byte("public"))
	})

	// A merely local peer never sees the trusted bundle, however often it
	// asks.
	for i := 0; i < 3; i++ {
		items, err := rig.fwd.SelectFor("peer-b", peerKey, 1<<20)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 {
			t.Fatalf("selected %d bundles, not 1", len(items))
		}
		if !items[0].BId.Equal(public.MustID()) {
			t.Fatal("selected the trusted bundle")
		}
	}
}

func TestForwarderExclusions(t *testing.T) {
	rig := newTestRig(t)

	hopSpent := rig.enqueue(t, store.QueuePending, func(b *bundle.EnvelopeBuilder) {
		b.HopLimit(1).Payload([]byte("hops"))
	})
	for i := 0; i < 2; i++ {
		if _, err := rig.store.IncrementHops(hopSpent.MustID()); err != nil {
			t.Fatal(err)
		}
	}

	seen := rig.enqueue(t, store.QueuePending, func(b *bundle.EnvelopeBuilder) {
		b.Payload([]byte("seen"))
	})
	if _, err := rig.store.AddPeerSeen(seen.MustID(), "peer-b"); err != nil {
		t.Fatal(err)
	}

	fresh := rig.enqueue(t, store.QueuePending, nil)

	items, err := rig.fwd.SelectFor("peer-b", nil, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || !items[0].BId.Equal(fresh.MustID()) {
		t.Fatalf("selected %d bundles instead of the single fresh one", len(items))
	}

	// The peer that has not seen it yet still gets the second bundle.
	items, err = rig.fwd.SelectFor("peer-c", nil, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("selected %d bundles for the other peer, not 2", len(items))
	}
}

func TestForwarderDeterministicOrder(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 8; i++ {
		rig.enqueue(t, store.QueueOutbox, func(b *bundle.EnvelopeBuilder) {
			b.Payload([]byte{byte(i)})
		})
	}

	first, err := rig.fwd.SelectFor("peer-b", nil, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	second, err := rig.fwd.SelectFor("peer-b", nil, 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatal("selection sizes differ")
	}
	for i := range first {
		if first[i].Id != second[i].Id {
			t.Fatalf("selection order differs at position %d", i)
		}
	}
}

func TestForwarderBudget(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 4; i++ {
		rig.enqueue(t, store.QueueOutbox, func(b *bundle.EnvelopeBuilder) {
			payload := make([]byte, 100)
			payload[0] = byte(i)
			b.Payload(payload)
		})
	}

	items, err := rig.fwd.SelectFor("peer-b", nil, 250)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("selected %d bundles under a 250 byte budget, not 2", len(items))
	}
}

func TestForwarderOnPeerAcked(t *testing.T) {
	rig := newTestRig(t)

	if _, err := rig.peers.Seen("peer-b", nil); err != nil {
		t.Fatal(err)
	}
	e := rig.enqueue(t, store.QueueOutbox, nil)

	item, err := rig.fwd.OnPeerAcked("peer-b", e.MustID())
	if err != nil {
		t.Fatal(err)
	}
	if !item.HasPeerSeen("peer-b") {
		t.Fatal("peer is not in peersSeen after ack")
	}
	if item.HopsSeen != 1 {
		t.Fatalf("hopsSeen is %d after one forward, not 1", item.HopsSeen)
	}

	p, err := rig.peers.Get("peer-b")
	if err != nil {
		t.Fatal(err)
	}
	if p.DeliveredToThem != 1 {
		t.Fatalf("peer counter is %d, not 1", p.DeliveredToThem)
	}

	// Once acked, the bundle is not offered to this peer again.
	items, err := rig.fwd.SelectFor("peer-b", nil, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("selected %d bundles after ack, not 0", len(items))
	}
}
