// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package routing decides which bundles leave this node and which bundles
// die first under cache pressure. The Forwarder selects and orders bundles
// for a specific peer contact; the utility score ranks live bundles for the
// evictor. Both work on the store's metadata rows only and never load
// payload bytes.
package routing
