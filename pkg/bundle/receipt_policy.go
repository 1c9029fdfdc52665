// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"fmt"
	"strings"
)

// ReceiptKind enumerates the acknowledgment events a node may report for a
// bundle. The set is fixed; producers request a subset at submission time.
type ReceiptKind uint8

const (
	// ReceiptReceived is emitted when a bundle is admitted from a peer.
	ReceiptReceived ReceiptKind = 1

	// ReceiptForwarded is emitted when a bundle was handed to a peer.
	ReceiptForwarded ReceiptKind = 2

	// ReceiptDelivered is emitted when a bundle reached a local subscriber.
	ReceiptDelivered ReceiptKind = 3

	// ReceiptExpired is emitted when a bundle's lifetime ended at this node.
	// The eviction path reuses this kind with the reason "evicted".
	ReceiptExpired ReceiptKind = 4

	// ReceiptDeleted is only written by the cache evictor's diagnostic path
	// and cannot be requested by producers.
	ReceiptDeleted ReceiptKind = 5
)

func (k ReceiptKind) String() string {
	switch k {
	case ReceiptReceived:
		return "received"
	case ReceiptForwarded:
		return "forwarded"
	case ReceiptDelivered:
		return "delivered"
	case ReceiptExpired:
		return "expired"
	case ReceiptDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("receipt(%d)", uint8(k))
	}
}

// ReceiptPolicy is the set of ReceiptKinds a producer asked for, stored as
// a bit set within one byte of the canonical form.
type ReceiptPolicy uint8

const (
	// RequestReceived asks for ReceiptReceived receipts.
	RequestReceived ReceiptPolicy = 1 << 0

	// RequestForwarded asks for ReceiptForwarded receipts.
	RequestForwarded ReceiptPolicy = 1 << 1

	// RequestDelivered asks for ReceiptDelivered receipts.
	RequestDelivered ReceiptPolicy = 1 << 2

	// RequestExpired asks for ReceiptExpired receipts.
	RequestExpired ReceiptPolicy = 1 << 3
)

// requestableMask covers every ReceiptPolicy bit a producer may set.
const requestableMask = RequestReceived | RequestForwarded | RequestDelivered | RequestExpired

// IsValid checks that no undefined bit is set.
func (rp ReceiptPolicy) IsValid() bool {
	return rp&^requestableMask == 0
}

// Has checks if receipts of the given kind were requested.
func (rp ReceiptPolicy) Has(kind ReceiptKind) bool {
	switch kind {
	case ReceiptReceived:
		return rp&RequestReceived != 0
	case ReceiptForwarded:
		return rp&RequestForwarded != 0
	case ReceiptDelivered:
		return rp&RequestDelivered != 0
	case ReceiptExpired:
		return rp&RequestExpired != 0
	default:
		return false
	}
}

func (rp ReceiptPolicy) String() string {
	var kinds []string
	for _, k := range []ReceiptKind{ReceiptReceived, ReceiptForwarded, ReceiptDelivered, ReceiptExpired} {
		if rp.Has(k) {
			kinds = append(kinds, k.String())
		}
	}
	if len(kinds) == 0 {
		return "none"
	}
	return strings.Join(kinds, ",")
}
