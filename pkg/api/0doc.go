// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api exposes a node's ingress and egress operations over HTTP:
// a JSON REST surface for submission, inspection and keyring
// administration, a WebSocket endpoint pushing delivered bundles to
// subscribers, and the Prometheus metrics endpoint.
package api
