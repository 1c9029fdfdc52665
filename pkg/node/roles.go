// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"fmt"
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// Role is a configuration preset shaping a node's cache budget, grace
// window and default receipt requests. The values are defaults, not
// mandates; explicit configuration overrides them.
type Role string

const (
	// RoleProducer suits an ordinary end-user node.
	RoleProducer Role = "producer"

	// RoleBridge suits a node physically carried between islands.
	RoleBridge Role = "bridge"

	// RoleLibrary suits a stationary long-term archive node.
	RoleLibrary Role = "library"

	// RoleConstrained suits small devices that only relay emergencies.
	RoleConstrained Role = "constrained"
)

// ParseRole checks a configured role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleProducer, RoleBridge, RoleLibrary, RoleConstrained:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// CacheBudget is the role's default live-bytes ceiling.
func (r Role) CacheBudget() uint64 {
	switch r {
	case RoleBridge:
		return 4 << 30
	case RoleLibrary:
		return 16 << 30
	case RoleConstrained:
		return 64 << 20
	default:
		return 512 << 20
	}
}

// GraceWindow is the role's duplicate-check retention after expiry.
func (r Role) GraceWindow() time.Duration {
	switch r {
	case RoleLibrary:
		return 28 * 24 * time.Hour
	case RoleConstrained:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// DefaultReceiptPolicy is requested on submissions that do not pick their
// own receipt kinds.
func (r Role) DefaultReceiptPolicy() bundle.ReceiptPolicy {
	switch r {
	case RoleBridge:
		return bundle.RequestForwarded
	case RoleLibrary:
		return bundle.RequestDelivered
	case RoleConstrained:
		return 0
	default:
		return bundle.RequestReceived | bundle.RequestDelivered
	}
}

// ForwardsOnlyEmergency reports whether the role restricts forwarding to
// emergency bundles.
func (r Role) ForwardsOnlyEmergency() bool {
	return r == RoleConstrained
}
