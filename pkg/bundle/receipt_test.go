// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"testing"
	"time"
)

func TestReceiptEnvelope(t *testing.T) {
	producerKey := testKey(t)
	nodeKey := testKey(t)

	ref, err := Builder().
		Topic("chat").
		Payload([]byte("hi")).
		Priority(Emergency).
		Audience(AudienceTrusted).
		HopLimit(6).
		ReceiptPolicy(RequestDelivered).
		TTL(time.Hour).
		Build(producerKey)
	if err != nil {
		t.Fatal(err)
	}

	rcptEnv, err := NewReceiptEnvelope(&ref, ReceiptDelivered, "", nodeKey)
	if err != nil {
		t.Fatal(err)
	}

	if rcptEnv.Priority != Normal {
		t.Fatalf("receipt priority is %v, not capped at normal", rcptEnv.Priority)
	}
	if rcptEnv.Audience != AudienceTrusted {
		t.Fatalf("receipt audience is %v, not inherited", rcptEnv.Audience)
	}
	if rcptEnv.HopLimit != 3 {
		t.Fatalf("receipt hop limit is %d, not 3", rcptEnv.HopLimit)
	}
	if !rcptEnv.IsReceipt() {
		t.Fatal("receipt envelope is not recognized as receipt")
	}
	if err := rcptEnv.Verify(); err != nil {
		t.Fatal(err)
	}

	rcpt, err := ParseReceipt(&rcptEnv)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ref.Equal(ref.MustID()) {
		t.Fatal("receipt references the wrong bundle")
	}
	if rcpt.Kind != ReceiptDelivered {
		t.Fatalf("receipt kind is %v", rcpt.Kind)
	}
	if rcptEnv.Topic != ReceiptTopic(ref.MustID()) {
		t.Fatalf("receipt topic is %q", rcptEnv.Topic)
	}
}

func TestReceiptHopLimitFloor(t *testing.T) {
	producerKey := testKey(t)
	nodeKey := testKey(t)

	ref, err := Builder().
		Topic("chat").
		Payload([]byte("hi")).
		HopLimit(0).
		TTL(time.Hour).
		Build(producerKey)
	if err != nil {
		t.Fatal(err)
	}

	rcptEnv, err := NewReceiptEnvelope(&ref, ReceiptReceived, "", nodeKey)
	if err != nil {
		t.Fatal(err)
	}
	if rcptEnv.HopLimit != 1 {
		t.Fatalf("receipt hop limit is %d, not 1", rcptEnv.HopLimit)
	}
}
