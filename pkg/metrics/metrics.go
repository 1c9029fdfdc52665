// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics holds the Prometheus collectors of the substrate. They
// are registered on the default registry and served by the api package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions counts arriving bundles by admission result, e.g.
	// "admitted", "duplicate", "signature" or "queue-full".
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftmesh_admissions_total",
		Help: "Bundle admissions by result.",
	}, []string{"result"})

	// Submissions counts locally produced bundles.
	Submissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftmesh_submissions_total",
		Help: "Locally submitted bundles.",
	})

	// Deliveries counts bundles handed to local subscriptions.
	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftmesh_deliveries_total",
		Help: "Bundles delivered to local subscriptions.",
	})

	// Expirations counts bundles moved to the expired queue.
	Expirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftmesh_expirations_total",
		Help: "Bundles expired by the TTL sweeper.",
	})

	// Evictions counts bundles removed under cache pressure.
	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftmesh_evictions_total",
		Help: "Bundles evicted under cache pressure.",
	})

	// Receipts counts emitted receipts by kind.
	Receipts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftmesh_receipts_total",
		Help: "Emitted receipt bundles by kind.",
	}, []string{"kind"})

	// Transfers counts bundles exchanged with peers by direction.
	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftmesh_transfers_total",
		Help: "Bundles exchanged with peers by direction.",
	}, []string{"direction"})

	// LiveBytes tracks the payload bytes across the live queues.
	LiveBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "driftmesh_live_bytes",
		Help: "Payload bytes across the live queues.",
	})
)
