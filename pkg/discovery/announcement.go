// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Announcement is a node's multicast beacon: its identity, its public
// signing key and the port of its contact listener.
type Announcement struct {
	NodeId    string
	PublicKey []byte
	Port      uint
}

// UnmarshalAnnouncement creates an Announcement from a beacon payload.
func UnmarshalAnnouncement(data []byte) (ann Announcement, err error) {
	err = cboring.Unmarshal(&ann, bytes.NewReader(data))
	return
}

// MarshalAnnouncement into a beacon payload.
func MarshalAnnouncement(ann Announcement) (data []byte, err error) {
	buff := new(bytes.Buffer)
	if err = cboring.Marshal(&ann, buff); err != nil {
		return
	}

	data = buff.Bytes()
	return
}

// MarshalCbor creates a CBOR representation for an Announcement.
func (ann *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(ann.NodeId, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(ann.PublicKey, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(ann.Port), w); err != nil {
		return err
	}

	return nil
}

// UnmarshalCbor creates an Announcement from its CBOR representation.
func (ann *Announcement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("wrong array length: %d instead of 3", l)
	}

	if nodeId, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		ann.NodeId = nodeId
	}
	if publicKey, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		ann.PublicKey = publicKey
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		ann.Port = uint(n)
	}

	return nil
}

func (ann Announcement) String() string {
	return fmt.Sprintf("Announcement(%s,%d)", ann.NodeId, ann.Port)
}
