// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"
)

// Peer is the persistent record of a known node.
type Peer struct {
	Id string `badgerhold:"key"`

	PublicKey []byte

	FirstSeen   time.Time
	LastContact time.Time

	// DeliveredToUs counts bundles this peer handed to us.
	DeliveredToUs uint64

	// DeliveredToThem counts bundles we handed to this peer.
	DeliveredToThem uint64

	// Effectiveness is a decaying average of "bundles given to this peer
	// that subsequently reached other peers first".
	Effectiveness float64
}

// Table is the persistent peer store.
type Table struct {
	bh *badgerhold.Store
}

// NewTable creates a new Table or opens an existing one from the given
// directory.
func NewTable(dir string) (tbl *Table, err error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()

	if dirErr := os.MkdirAll(dir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		tbl = &Table{bh: bh}
	}
	return
}

// Close the Table. It must not be used afterwards.
func (tbl *Table) Close() error {
	return tbl.bh.Close()
}

// Seen upserts a peer record on contact and refreshes LastContact.
func (tbl *Table) Seen(id string, publicKey []byte) (p Peer, err error) {
	now := time.Now().UTC()

	if err = tbl.bh.Get(id, &p); err == badgerhold.ErrNotFound {
		p = Peer{
			Id:        id,
			PublicKey: publicKey,
			FirstSeen: now,
		}
		log.WithField("peer", id).Info("Learned a new peer")
	} else if err != nil {
		return
	}

	if len(publicKey) > 0 {
		p.PublicKey = publicKey
	}
	p.LastContact = now

	err = tbl.bh.Upsert(p.Id, p)
	return
}

// Get fetches a peer record.
func (tbl *Table) Get(id string) (p Peer, err error) {
	err = tbl.bh.Get(id, &p)
	return
}

// All returns every known peer.
func (tbl *Table) All() (peers []Peer, err error) {
	err = tbl.bh.Find(&peers, nil)
	return
}

// mutate applies a change to an existing peer record.
func (tbl *Table) mutate(id string, change func(*Peer)) error {
	var p Peer
	if err := tbl.bh.Get(id, &p); err != nil {
		return err
	}

	change(&p)
	return tbl.bh.Update(p.Id, p)
}

// RecordDeliveredToUs counts bundles received from the peer.
func (tbl *Table) RecordDeliveredToUs(id string, n uint64) error {
	return tbl.mutate(id, func(p *Peer) { p.DeliveredToUs += n })
}

// RecordDeliveredToThem counts bundles handed to the peer.
func (tbl *Table) RecordDeliveredToThem(id string, n uint64) error {
	return tbl.mutate(id, func(p *Peer) { p.DeliveredToThem += n })
}

// RecordEcho credits the peer: a bundle it was given showed up at another
// node.
func (tbl *Table) RecordEcho(id string) error {
	return tbl.mutate(id, func(p *Peer) { p.Effectiveness++ })
}

// Boost is the peer's current effectiveness score, zero for unknowns.
func (tbl *Table) Boost(id string) float64 {
	var p Peer
	if err := tbl.bh.Get(id, &p); err != nil {
		return 0
	}
	return p.Effectiveness
}

// Decay multiplies every effectiveness score by the given factor in
// (0, 1), run periodically so stale bridges lose their head start.
func (tbl *Table) Decay(factor float64) {
	peers, err := tbl.All()
	if err != nil {
		log.WithError(err).Warn("Failed to list peers for decay")
		return
	}

	for _, p := range peers {
		p.Effectiveness *= factor
		if err := tbl.bh.Update(p.Id, p); err != nil {
			log.WithFields(log.Fields{
				"peer":  p.Id,
				"error": err,
			}).Warn("Failed to decay peer effectiveness")
		}
	}
}
