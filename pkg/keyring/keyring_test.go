// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

func testKeyring(t *testing.T) *Keyring {
	kr, err := NewKeyring(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kr.Close() })
	return kr
}

func testPub(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestTrustLevels(t *testing.T) {
	kr := testKeyring(t)

	stranger := testPub(t)
	neighbor := testPub(t)
	friend := testPub(t)
	confidant := testPub(t)

	require.NoError(t, kr.Add(RingLocal, neighbor, "met at the well"))
	require.NoError(t, kr.Add(RingTrusted, friend, ""))
	require.NoError(t, kr.Add(RingVerified, confidant, ""))
	require.NoError(t, kr.Add(RingLocal, confidant, ""))

	require.Equal(t, 0, kr.TrustLevel(stranger))
	require.Equal(t, 1, kr.TrustLevel(neighbor))
	require.Equal(t, 2, kr.TrustLevel(friend))
	require.Equal(t, 3, kr.TrustLevel(confidant), "max level over all rings")
}

func TestAudienceTable(t *testing.T) {
	kr := testKeyring(t)

	keys := map[int]ed25519.PublicKey{
		0: testPub(t), 1: testPub(t), 2: testPub(t), 3: testPub(t),
	}
	require.NoError(t, kr.Add(RingLocal, keys[1], ""))
	require.NoError(t, kr.Add(RingTrusted, keys[2], ""))
	require.NoError(t, kr.Add(RingVerified, keys[3], ""))

	expectations := []struct {
		audience bundle.Audience
		minLevel int
	}{
		{bundle.AudiencePublic, 0},
		{bundle.AudienceLocal, 1},
		{bundle.AudienceTrusted, 2},
		{bundle.AudiencePrivate, 3},
	}

	for _, expect := range expectations {
		for level, key := range keys {
			allowed := level >= expect.minLevel
			require.Equal(t, allowed, kr.CanReceive(key, expect.audience),
				"canReceive(level=%d, %v)", level, expect.audience)
			require.Equal(t, allowed, kr.CanProduce(key, expect.audience),
				"canProduce(level=%d, %v)", level, expect.audience)
		}
	}
}

func TestAddRemove(t *testing.T) {
	kr := testKeyring(t)
	pub := testPub(t)

	require.Error(t, kr.Add(RingPublic, pub, ""), "public ring is implicit")

	require.NoError(t, kr.Add(RingTrusted, pub, ""))
	require.NoError(t, kr.Add(RingTrusted, pub, ""), "re-adding is a no-op")

	entries, err := kr.List(RingTrusted)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, kr.Remove(RingTrusted, pub))
	require.NoError(t, kr.Remove(RingTrusted, pub), "re-removing is a no-op")
	require.Equal(t, 0, kr.TrustLevel(pub))
}

func TestExportImportRoundTrip(t *testing.T) {
	src := testKeyring(t)
	dst := testKeyring(t)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	a, b := testPub(t), testPub(t)
	require.NoError(t, src.Add(RingTrusted, a, "a"))
	require.NoError(t, src.Add(RingTrusted, b, "b"))

	env, err := src.ExportEnvelope(RingTrusted, priv)
	require.NoError(t, err)
	require.Equal(t, bundle.PayloadTypeKeyringExport, env.PayloadType)
	require.Equal(t, bundle.AudienceTrusted, env.Audience)
	require.NoError(t, env.Verify())

	added, err := dst.ImportEnvelope(&env)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	require.Equal(t, 2, dst.TrustLevel(a))
	require.Equal(t, 2, dst.TrustLevel(b))
}
