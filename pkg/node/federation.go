// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"bytes"

	"github.com/dtn7/cboring"
	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/keyring"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// ExportKeyring packs one of this node's rings into a signed trust bundle
// and stores it in outbox, so the next contacts carry it to eligible
// peers. The bundle travels under the ring's audience: a ring never
// becomes visible below the trust it describes.
func (n *Node) ExportKeyring(ring keyring.Ring) (bid bundle.BundleID, err error) {
	e, exportErr := n.keyring.ExportEnvelope(ring, n.priv)
	if exportErr != nil {
		err = &ValidationError{Field: "ring", Reason: exportErr.Error()}
		return
	}

	if !n.keyring.CanProduce(n.pub, e.Audience) {
		err = &AuthError{Reason: ReasonAudience}
		return
	}

	if !n.makeRoom(e.PayloadSize()) {
		err = &ResourceError{Reason: ReasonQueueFull}
		return
	}

	if _, err = n.store.Enqueue(&e, store.QueueOutbox); err != nil {
		return
	}

	bid = e.MustID()
	metrics.Submissions.Inc()
	metrics.LiveBytes.Set(float64(n.store.LiveBytes()))

	log.WithFields(log.Fields{
		"bundle": bid,
		"ring":   ring,
	}).Info("Exported keyring")

	return
}

// observeIfKeyringExport merges an admitted trust bundle into the local
// keyring. The exporter must already hold at least the trust level of the
// ring it extends; anything less is stored and forwarded like any other
// bundle but changes no local state.
func (n *Node) observeIfKeyringExport(e *bundle.Envelope) {
	if e.PayloadType != bundle.PayloadTypeKeyringExport {
		return
	}

	var ex keyring.Export
	if err := cboring.Unmarshal(&ex, bytes.NewReader(e.Payload)); err != nil {
		log.WithError(err).Warn("Received an unparsable keyring export")
		return
	}

	if n.keyring.TrustLevel(e.Producer) < ex.Ring.Level() {
		log.WithFields(log.Fields{
			"ring":   ex.Ring,
			"bundle": e.MustID(),
		}).Info("Ignoring keyring export from an insufficiently trusted exporter")
		return
	}

	if _, err := n.keyring.ImportEnvelope(e); err != nil {
		log.WithFields(log.Fields{
			"ring":  ex.Ring,
			"error": err,
		}).Warn("Failed to import keyring export")
	}
}
