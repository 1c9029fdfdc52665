// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package keyring persists the node's trust state: four named keyrings,
// each a set of public keys, each keyring granting a fixed trust level.
// The keyring answers the two questions the substrate asks about a key:
// may it produce a bundle of a given audience, and may it receive one.
package keyring
