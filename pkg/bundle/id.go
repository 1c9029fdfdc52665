// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// BundleIDLen is the length of a BundleID in bytes, a SHA-256 digest.
const BundleIDLen = 32

// BundleID identifies a bundle by the SHA-256 digest over its canonical
// form, excluding the signature. Identical fields produce identical ids on
// every implementation.
type BundleID [BundleIDLen]byte

func (bid BundleID) String() string {
	return hex.EncodeToString(bid[:])
}

// Bytes returns the id as a byte slice.
func (bid BundleID) Bytes() []byte {
	return bid[:]
}

// Equal compares two BundleIDs.
func (bid BundleID) Equal(other BundleID) bool {
	return bytes.Equal(bid[:], other[:])
}

// IsZero is true for the zero-value BundleID, which no bundle carries.
func (bid BundleID) IsZero() bool {
	return bid == BundleID{}
}

// ParseBundleID reads a BundleID back from its hexadecimal string form.
func ParseBundleID(s string) (bid BundleID, err error) {
	raw, decErr := hex.DecodeString(s)
	if decErr != nil {
		err = decErr
		return
	}
	if len(raw) != BundleIDLen {
		err = fmt.Errorf("bundle id is %d bytes, not %d", len(raw), BundleIDLen)
		return
	}

	copy(bid[:], raw)
	return
}

// MustParseBundleID is a ParseBundleID which panics on errors.
func MustParseBundleID(s string) BundleID {
	bid, err := ParseBundleID(s)
	if err != nil {
		panic(err)
	}
	return bid
}
