// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package peer keeps the node's knowledge about other nodes: identity,
// contact history, transfer counters and an effectiveness score. The
// score is a decaying average of how often bundles handed to a peer
// showed up elsewhere first; it breaks ties in forwarding order and is
// never used for admission.
package peer
