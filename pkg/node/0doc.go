// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package node assembles the substrate: the admission pipeline, the
// ingress/egress API for local producers and subscribers, the TTL sweeper,
// the cache evictor and the receipt subsystem, all running over the store,
// keyring, peer table and forwarder. A Node also implements the session
// handler of the contact package, so peer sync sessions drive it directly.
package node
