// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package keyring

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// Entry is one public key's membership in one Ring.
type Entry struct {
	Id string `badgerhold:"key"`

	Ring      string `badgerholdIndex:"Ring"`
	PublicKey []byte
	AddedAt   time.Time
	Note      string
}

func entryId(ring Ring, publicKey []byte) string {
	return string(ring) + "/" + hex.EncodeToString(publicKey)
}

// Keyring is the persistent trust store of a node.
type Keyring struct {
	bh *badgerhold.Store
}

// NewKeyring creates a new Keyring or opens an existing one from the
// given directory.
func NewKeyring(dir string) (kr *Keyring, err error) {
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
		kr = &Keyring{bh: bh}
	}
	return
}

// Close the Keyring. It must not be used afterwards.
func (kr *Keyring) Close() error {
	return kr.bh.Close()
}

// Add a public key to a Ring. Adding a known key again is a no-op.
func (kr *Keyring) Add(ring Ring, publicKey []byte, note string) error {
	if !ring.IsValid() {
		return fmt.Errorf("unknown keyring %q", ring)
	}
	if ring == RingPublic {
		return fmt.Errorf("the public keyring is implicit and holds no entries")
	}
	if len(publicKey) == 0 {
		return fmt.Errorf("public key is empty")
	}

	entry := Entry{
		Id:        entryId(ring, publicKey),
		Ring:      string(ring),
		PublicKey: publicKey,
		AddedAt:   time.Now().UTC(),
		Note:      note,
	}

	err := kr.bh.Insert(entry.Id, entry)
	if err == badgerhold.ErrKeyExists {
		return nil
	}
	if err == nil {
		log.WithFields(log.Fields{
			"ring": ring,
			"key":  hex.EncodeToString(publicKey),
		}).Info("Added key to keyring")
	}
	return err
}

// Remove a public key from a Ring. Removing an unknown key is a no-op.
func (kr *Keyring) Remove(ring Ring, publicKey []byte) error {
	err := kr.bh.Delete(entryId(ring, publicKey), Entry{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	if err == nil {
		log.WithFields(log.Fields{
			"ring": ring,
			"key":  hex.EncodeToString(publicKey),
		}).Info("Removed key from keyring")
	}
	return err
}

// List all entries of a Ring.
func (kr *Keyring) List(ring Ring) (entries []Entry, err error) {
	err = kr.bh.Find(&entries, badgerhold.Where("Ring").Eq(string(ring)))
	return
}

// TrustLevel of a public key: the maximum level over all rings containing
// it, defaulting to zero.
func (kr *Keyring) TrustLevel(publicKey []byte) int {
	level := RingPublic.Level()

	for _, ring := range []Ring{RingLocal, RingTrusted, RingVerified} {
		var entry Entry
		if err := kr.bh.Get(entryId(ring, publicKey), &entry); err == nil {
			if l := ring.Level(); l > level {
				level = l
			}
		}
	}

	return level
}

// requiredLevel maps an audience to the minimum trust level a principal
// needs to read or produce it.
func requiredLevel(audience bundle.Audience) int {
	switch audience {
	case bundle.AudienceLocal:
		return 1
	case bundle.AudienceTrusted:
		return 2
	case bundle.AudiencePrivate:
		return 3
	default:
		return 0
	}
}

// CanReceive answers if the principal identified by publicKey may read a
// bundle of the given audience.
func (kr *Keyring) CanReceive(publicKey []byte, audience bundle.Audience) bool {
	return kr.TrustLevel(publicKey) >= requiredLevel(audience)
}

// CanProduce answers if the principal identified by publicKey may produce
// a bundle of the given audience. The table equals CanReceive's: a node
// refuses to ingest a bundle whose producer is not entitled to its own
// declared audience.
func (kr *Keyring) CanProduce(publicKey []byte, audience bundle.Audience) bool {
	return kr.CanReceive(publicKey, audience)
}
