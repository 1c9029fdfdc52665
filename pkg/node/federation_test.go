// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/driftmesh/driftmesh-go/pkg/keyring"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

func TestKeyringFederation(t *testing.T) {
	a := testNode(t, func(cfg *Config) { cfg.NodeId = "node-a" })
	b := testNode(t, func(cfg *Config) { cfg.NodeId = "node-b" })

	friend, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	// node-a vouches for itself, its peer and a friend; node-b trusts
	// node-a as an exporter.
	for _, add := range []struct {
		key  []byte
		note string
	}{
		{a.PublicKey(), "self"},
		{b.PublicKey(), "peer"},
		{friend, "friend"},
	} {
		if err := a.Keyring().Add(keyring.RingTrusted, add.key, add.note); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Keyring().Add(keyring.RingTrusted, a.PublicKey(), "exporter"); err != nil {
		t.Fatal(err)
	}

	bid, err := a.ExportKeyring(keyring.RingTrusted)
	if err != nil {
		t.Fatal(err)
	}

	stop := runContact(t, a, b)
	defer stop()

	// The trust bundle rides the ordinary sync and extends node-b's ring.
	waitFor(t, "imported friend key on node-b", func() bool {
		return b.Keyring().TrustLevel(friend) >= keyring.RingTrusted.Level()
	})

	item, err := b.Store().QueryId(bid)
	if err != nil {
		t.Fatal(err)
	}
	if item.CurrentQueue() == store.QueueQuarantine {
		t.Fatal("trust bundle was quarantined on the importer")
	}
}

func TestKeyringExportRequiresTrust(t *testing.T) {
	a := testNode(t, func(cfg *Config) { cfg.NodeId = "node-a" })
	b := testNode(t, func(cfg *Config) { cfg.NodeId = "node-b" })

	friend, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Keyring().Add(keyring.RingTrusted, a.PublicKey(), "self"); err != nil {
		t.Fatal(err)
	}
	if err := a.Keyring().Add(keyring.RingTrusted, b.PublicKey(), "peer"); err != nil {
		t.Fatal(err)
	}
	if err := a.Keyring().Add(keyring.RingTrusted, friend, "friend"); err != nil {
		t.Fatal(err)
	}

	// node-b knows node-a only as an island neighbor. A merely local
	// producer may not speak for the trusted ring.
	if err := b.Keyring().Add(keyring.RingLocal, a.PublicKey(), "neighbor"); err != nil {
		t.Fatal(err)
	}

	bid, err := a.ExportKeyring(keyring.RingTrusted)
	if err != nil {
		t.Fatal(err)
	}

	stop := runContact(t, a, b)
	defer stop()

	waitFor(t, "quarantined trust bundle on node-b", func() bool {
		item, err := b.Store().QueryId(bid)
		return err == nil && item.CurrentQueue() == store.QueueQuarantine
	})

	if b.Keyring().TrustLevel(friend) != 0 {
		t.Fatal("untrusted export extended the keyring")
	}
}

func TestExportKeyringUnauthorized(t *testing.T) {
	n := testNode(t, nil)

	// Without vouching for itself the node may not produce the trusted
	// audience its ring export would travel under.
	_, err := n.ExportKeyring(keyring.RingTrusted)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("export without production right returned %v", err)
	}
}
