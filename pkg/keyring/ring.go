// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package keyring

import "fmt"

// Ring names one of the four keyrings. The trust level is a property of
// the ring, not of the key: a key's effective level is the maximum over
// all rings containing it.
type Ring string

const (
	// RingPublic grants trust level 0, which every key holds implicitly.
	RingPublic Ring = "public"

	// RingLocal grants trust level 1.
	RingLocal Ring = "local"

	// RingTrusted grants trust level 2.
	RingTrusted Ring = "trusted"

	// RingVerified grants trust level 3.
	RingVerified Ring = "verified"
)

// Rings lists all defined rings in ascending trust order.
func Rings() []Ring {
	return []Ring{RingPublic, RingLocal, RingTrusted, RingVerified}
}

// IsValid checks this Ring for a defined name.
func (ring Ring) IsValid() bool {
	switch ring {
	case RingPublic, RingLocal, RingTrusted, RingVerified:
		return true
	default:
		return false
	}
}

// Level is the trust level granted by membership in this Ring.
func (ring Ring) Level() int {
	switch ring {
	case RingLocal:
		return 1
	case RingTrusted:
		return 2
	case RingVerified:
		return 3
	default:
		return 0
	}
}

// ParseRing returns the Ring named by s.
func ParseRing(s string) (Ring, error) {
	ring := Ring(s)
	if !ring.IsValid() {
		return "", fmt.Errorf("unknown keyring %q", s)
	}
	return ring, nil
}
