// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"testing"
	"time"
)

func throttleManager(dials *[]string, boost func(string) float64) *Manager {
	return &Manager{
		announcement: Announcement{NodeId: "self", Port: 35037},
		dialFunc: func(address string) error {
			*dials = append(*dials, address)
			return nil
		},
		boostFunc: boost,
		lastDial:  make(map[string]time.Time),
	}
}

func TestManagerRedialThrottle(t *testing.T) {
	var dials []string
	manager := throttleManager(&dials, nil)

	ann := Announcement{NodeId: "peer", Port: 3003}

	manager.handleDiscovery(ann, "10.0.0.2")
	if len(dials) != 1 || dials[0] != "10.0.0.2:3003" {
		t.Fatalf("first beacon dialed %v", dials)
	}

	// The next beacons arrive well within the redial delay.
	manager.handleDiscovery(ann, "10.0.0.2")
	manager.handleDiscovery(ann, "10.0.0.2")
	if len(dials) != 1 {
		t.Fatalf("repeated beacons dialed %v", dials)
	}

	// Own beacons come back because of AllowSelf and are never dialed.
	manager.handleDiscovery(Announcement{NodeId: "self", Port: 35037}, "10.0.0.1")
	if len(dials) != 1 {
		t.Fatalf("own beacon dialed %v", dials)
	}
}

func TestManagerEffectiveBridgeRedialsSooner(t *testing.T) {
	var dials []string
	manager := throttleManager(&dials, func(nodeId string) float64 {
		if nodeId == "bridge" {
			return 59
		}
		return 0
	})

	// Both peers dialed a second ago. The effective bridge's delay has
	// shrunk below that, the silent peer still waits out the base delay.
	manager.lastDial["bridge"] = time.Now().Add(-time.Second)
	manager.lastDial["peer"] = time.Now().Add(-time.Second)

	manager.handleDiscovery(Announcement{NodeId: "peer", Port: 3003}, "10.0.0.2")
	if len(dials) != 0 {
		t.Fatalf("silent peer was redialed: %v", dials)
	}

	manager.handleDiscovery(Announcement{NodeId: "bridge", Port: 3003}, "10.0.0.3")
	if len(dials) != 1 || dials[0] != "10.0.0.3:3003" {
		t.Fatalf("effective bridge was not redialed: %v", dials)
	}
}
