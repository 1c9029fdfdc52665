// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv
}

func testEnvelope(t *testing.T, priv ed25519.PrivateKey) Envelope {
	e, err := Builder().
		Topic("chat").
		PayloadType("text/plain").
		Payload([]byte("hello world")).
		Priority(Normal).
		Audience(AudiencePublic).
		HopLimit(5).
		ReceiptPolicy(RequestReceived | RequestDelivered).
		TTL(time.Hour).
		Build(priv)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCanonicalRoundTrip(t *testing.T) {
	priv := testKey(t)
	e := testEnvelope(t, priv)

	data, err := e.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var e2 Envelope
	if err := e2.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}

	id1, err := e.ID()
	if err != nil {
		t.Fatal(err)
	}
	id2, err := e2.ID()
	if err != nil {
		t.Fatal(err)
	}
	if !id1.Equal(id2) {
		t.Fatalf("id changed after re-encoding: %v != %v", id1, id2)
	}

	if err := e2.Verify(); err != nil {
		t.Fatalf("re-decoded envelope does not verify: %v", err)
	}

	data2, err := e2.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatal("re-encoding is not bit-identical")
	}
}

func TestCanonicalStableSignature(t *testing.T) {
	priv := testKey(t)
	e := testEnvelope(t, priv)

	sig := append([]byte{}, e.Signature...)
	if err := e.Sign(priv); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sig, e.Signature) {
		t.Fatal("re-signing identical canonical bytes changed the signature")
	}
}

func TestSignatureSensitivity(t *testing.T) {
	priv := testKey(t)

	mutations := map[string]func(e *Envelope){
		"payload":       func(e *Envelope) { e.Payload[0] ^= 0x01 },
		"topic":         func(e *Envelope) { e.Topic = "chat2" },
		"payload_type":  func(e *Envelope) { e.PayloadType = "text/html" },
		"priority":      func(e *Envelope) { e.Priority = Low },
		"audience":      func(e *Envelope) { e.Audience = AudienceLocal },
		"hop_limit":     func(e *Envelope) { e.HopLimit++ },
		"expires_at":    func(e *Envelope) { e.ExpiresAt = e.ExpiresAt.Add(time.Millisecond) },
		"created_at":    func(e *Envelope) { e.CreatedAt = e.CreatedAt.Add(-time.Millisecond) },
		"receiptpolicy": func(e *Envelope) { e.ReceiptPolicy = RequestExpired },
		"producer":      func(e *Envelope) { e.Producer[0] ^= 0x80 },
	}

	for name, mutate := range mutations {
		e := testEnvelope(t, priv)
		if err := e.Verify(); err != nil {
			t.Fatalf("%s: fresh envelope does not verify: %v", name, err)
		}

		origID := e.MustID()
		mutate(&e)

		if err := e.Verify(); err == nil {
			t.Fatalf("%s: mutated envelope still verifies", name)
		}

		if e.MustID().Equal(origID) {
			t.Fatalf("%s: mutated envelope kept its bundle id", name)
		}
	}
}

func TestVerifyID(t *testing.T) {
	priv := testKey(t)
	e := testEnvelope(t, priv)

	bid := e.MustID()
	if err := e.VerifyID(bid); err != nil {
		t.Fatal(err)
	}

	bid[0] ^= 0xff
	if err := e.VerifyID(bid); err != ErrIdMismatch {
		t.Fatalf("expected ErrIdMismatch, got %v", err)
	}
}

func TestParseEnvelopeTruncated(t *testing.T) {
	priv := testKey(t)
	e := testEnvelope(t, priv)

	data, err := e.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	for _, l := range []int{0, 1, 9, len(data) / 2, len(data) - 1} {
		if _, err := ParseEnvelope(bytes.NewReader(data[:l])); err == nil {
			t.Fatalf("parsing %d of %d bytes succeeded", l, len(data))
		}
	}
}
