// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"crypto/ed25519"
	"crypto/rand"
	"reflect"
	"testing"
)

func TestAnnouncementCbor(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	var tests = []Announcement{
		{
			NodeId:    "node-a",
			PublicKey: pub,
			Port:      35037,
		},
		{
			NodeId:    "ridge-bridge-02",
			PublicKey: pub,
			Port:      12345,
		},
	}

	for _, annIn := range tests {
		buff, err := MarshalAnnouncement(annIn)
		if err != nil {
			t.Fatalf("Encoding failed: %v", err)
		}

		annOut, err := UnmarshalAnnouncement(buff)
		if err != nil {
			t.Fatalf("Decoding failed: %v", err)
		}

		if !reflect.DeepEqual(annIn, annOut) {
			t.Fatalf("Decoded Announcement differs: %v became %v", annIn, annOut)
		}
	}
}

func TestAnnouncementCborGarbage(t *testing.T) {
	if _, err := UnmarshalAnnouncement([]byte{0xff, 0x00, 0x23}); err == nil {
		t.Fatal("Decoding garbage succeeded")
	}
}
