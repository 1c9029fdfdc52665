// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bundle provides the data model of driftmesh's transport unit: an
// immutable, signed, content-addressed envelope carrying an opaque payload.
//
// An Envelope is identified by its BundleID, the SHA-256 digest over the
// envelope's canonical form excluding the signature. The canonical form is
// a deterministic binary encoding, so the same fields yield the same id on
// every node. Signatures are detached ed25519 signatures over the very same
// canonical bytes.
package bundle
