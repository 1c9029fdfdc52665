// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store persists bundles together with their mutable metadata.
// Every bundle resides in exactly one of six queues at any time; queue
// moves are atomic compare-and-set updates and are persisted before they
// are acknowledged, so a crash leaves a bundle in its source queue, never
// nowhere and never in two places.
//
// Envelope bytes live as flat files next to a badgerhold database holding
// the metadata rows and the secondary indexes (queue, priority, topic,
// expiry). Live payload bytes are accounted against the cache budget by
// the node's evictor.
package store
