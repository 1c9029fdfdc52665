// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package contact implements the peer sync protocol: a symmetric
// offer/want/deliver exchange over a reliable byte stream, framed as
// uint32 length, uint8 kind, CBOR body. Both sides of a session run the
// sender and the receiver role concurrently; tearing the transport down at
// any point leaves both stores intact.
package contact
