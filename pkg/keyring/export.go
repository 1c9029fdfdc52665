// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package keyring

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// exportEntry is the wire form of one keyring Entry.
type exportEntry struct {
	PublicKey []byte
	AddedAtMs uint64
	Note      string
}

func (ee *exportEntry) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(ee.PublicKey, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(ee.AddedAtMs, w); err != nil {
		return err
	}
	return cboring.WriteTextString(ee.Note, w)
}

func (ee *exportEntry) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("keyring export entry expected array of length 3, got %d", n)
	}

	var err error
	if ee.PublicKey, err = cboring.ReadByteString(r); err != nil {
		return err
	}
	if ee.AddedAtMs, err = cboring.ReadUInt(r); err != nil {
		return err
	}
	ee.Note, err = cboring.ReadTextString(r)
	return err
}

// Export is the wire form of one complete Ring.
type Export struct {
	Ring    Ring
	Entries []exportEntry
}

// MarshalCbor writes this Export's CBOR representation.
func (ex *Export) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(string(ex.Ring), w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(ex.Entries)), w); err != nil {
		return err
	}
	for i := range ex.Entries {
		if err := cboring.Marshal(&ex.Entries[i], w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalCbor reads a CBOR representation of an Export.
func (ex *Export) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("keyring export expected array of length 2, got %d", n)
	}

	if name, err := cboring.ReadTextString(r); err != nil {
		return err
	} else if ring, ringErr := ParseRing(name); ringErr != nil {
		return ringErr
	} else {
		ex.Ring = ring
	}

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	ex.Entries = make([]exportEntry, n)
	for i := range ex.Entries {
		if err := cboring.Unmarshal(&ex.Entries[i], r); err != nil {
			return err
		}
	}
	return nil
}

// exportAudience maps a Ring to the audience its export travels under, so
// a keyring export is never visible below the trust it describes.
func exportAudience(ring Ring) bundle.Audience {
	switch ring {
	case RingLocal:
		return bundle.AudienceLocal
	case RingTrusted:
		return bundle.AudienceTrusted
	case RingVerified:
		return bundle.AudiencePrivate
	default:
		return bundle.AudiencePublic
	}
}

// ExportEnvelope packs a Ring into a signed bundle of payload type
// trust:KeyringExport, so keyring federation rides the ordinary transport
// with the ordinary guarantees.
func (kr *Keyring) ExportEnvelope(ring Ring, priv ed25519.PrivateKey) (e bundle.Envelope, err error) {
	entries, listErr := kr.List(ring)
	if listErr != nil {
		err = listErr
		return
	}

	ex := Export{Ring: ring}
	for _, entry := range entries {
		ex.Entries = append(ex.Entries, exportEntry{
			PublicKey: entry.PublicKey,
			AddedAtMs: uint64(entry.AddedAt.UnixMilli()),
			Note:      entry.Note,
		})
	}

	var payload bytes.Buffer
	if err = cboring.Marshal(&ex, &payload); err != nil {
		return
	}

	return bundle.Builder().
		Topic("trust/keyring/" + string(ring)).
		PayloadType(bundle.PayloadTypeKeyringExport).
		Payload(payload.Bytes()).
		Audience(exportAudience(ring)).
		TTL(24 * time.Hour).
		Build(priv)
}

// ImportEnvelope merges a trust:KeyringExport bundle into this Keyring.
// The Envelope must already have passed signature verification; whether
// its producer is trusted enough to extend the keyring is the caller's
// policy decision.
func (kr *Keyring) ImportEnvelope(e *bundle.Envelope) (added int, err error) {
	if e.PayloadType != bundle.PayloadTypeKeyringExport {
		err = fmt.Errorf("envelope's payload type is %q, not %q",
			e.PayloadType, bundle.PayloadTypeKeyringExport)
		return
	}

	var ex Export
	if err = cboring.Unmarshal(&ex, bytes.NewReader(e.Payload)); err != nil {
		return
	}

	for _, entry := range ex.Entries {
		if addErr := kr.Add(ex.Ring, entry.PublicKey, entry.Note); addErr != nil {
			err = addErr
			return
		}
		added++
	}

	log.WithFields(log.Fields{
		"ring":    ex.Ring,
		"entries": added,
	}).Info("Imported keyring export")

	return
}
