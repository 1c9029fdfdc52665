// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package contact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// ProtocolVersion of the peer sync protocol. Incompatible versions answer
// HELLO with BYE and disconnect.
const ProtocolVersion uint64 = 1

// maxMessageLen bounds a single framed message, large enough for one
// DELIVER carrying a maximum-size payload.
const maxMessageLen = 64 * 1024 * 1024

// Kind discriminates the session messages.
type Kind uint8

const (
	KindHello   Kind = 1
	KindOffer   Kind = 2
	KindWant    Kind = 3
	KindDeliver Kind = 4
	KindAck     Kind = 5
	KindNack    Kind = 6
	KindBye     Kind = 7
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "HELLO"
	case KindOffer:
		return "OFFER"
	case KindWant:
		return "WANT"
	case KindDeliver:
		return "DELIVER"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	case KindBye:
		return "BYE"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// WriteMessage frames and writes one session message: uint32 length over
// kind and body, the kind byte, the CBOR body.
func WriteMessage(w io.Writer, kind Kind, body cboring.CborMarshaler) error {
	var buf bytes.Buffer
	if body != nil {
		if err := cboring.Marshal(body, &buf); err != nil {
			return err
		}
	}

	return writeFrame(w, kind, buf.Bytes())
}

// writeFrame writes an already marshaled message body under the framing of
// WriteMessage.
func writeFrame(w io.Writer, kind Kind, body []byte) error {
	if len(body)+1 > maxMessageLen {
		return fmt.Errorf("message of %d bytes exceeds the frame limit", len(body)+1)
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header, uint32(len(body)+1))
	header[4] = byte(kind)

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(body) == 0 {
		// A zero-length Write blocks on net.Pipe until the peer reads;
		// the frame is already complete after the header.
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadMessage reads one framed session message and returns its kind and
// raw body bytes.
func ReadMessage(r io.Reader) (kind Kind, body []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return
	}

	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen == 0 {
		err = fmt.Errorf("zero-length frame")
		return
	}
	if frameLen > maxMessageLen {
		err = fmt.Errorf("frame of %d bytes exceeds the limit", frameLen)
		return
	}

	frame := make([]byte, frameLen)
	if _, err = io.ReadFull(r, frame); err != nil {
		return
	}

	kind = Kind(frame[0])
	body = frame[1:]
	return
}

// unmarshal decodes a raw message body into the given CBOR type.
func unmarshal(m cboring.CborMarshaler, body []byte) error {
	return cboring.Unmarshal(m, bytes.NewReader(body))
}

// Hello opens a session and introduces the node.
type Hello struct {
	NodeId         string
	PublicKey      []byte
	Version        uint64
	Now            time.Time
	AvailableBytes uint64
}

// MarshalCbor writes this Hello's CBOR representation.
func (h *Hello) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(h.NodeId, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(h.PublicKey, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(h.Version, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(h.Now.UnixMilli()), w); err != nil {
		return err
	}
	return cboring.WriteUInt(h.AvailableBytes, w)
}

// UnmarshalCbor reads a CBOR representation of a Hello.
func (h *Hello) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("Hello expected array of length 5, got %d", n)
	}

	if nodeId, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		h.NodeId = nodeId
	}

	if publicKey, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		h.PublicKey = publicKey
	}

	if version, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		h.Version = version
	}

	if now, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		h.Now = time.UnixMilli(int64(now)).UTC()
	}

	if availableBytes, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		h.AvailableBytes = availableBytes
	}

	return nil
}

// OfferEntry describes one candidate bundle within an Offer.
type OfferEntry struct {
	Id       bundle.BundleID
	Priority uint8
	Size     uint64
	Topic    string
}

// MarshalCbor writes this OfferEntry's CBOR representation.
func (oe *OfferEntry) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	if err := cboring.WriteByteString(oe.Id.Bytes(), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(oe.Priority), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(oe.Size, w); err != nil {
		return err
	}
	return cboring.WriteTextString(oe.Topic, w)
}

// UnmarshalCbor reads a CBOR representation of an OfferEntry.
func (oe *OfferEntry) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("OfferEntry expected array of length 4, got %d", n)
	}

	if id, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(id) != bundle.BundleIDLen {
		return fmt.Errorf("OfferEntry's id is %d bytes, not %d", len(id), bundle.BundleIDLen)
	} else {
		copy(oe.Id[:], id)
	}

	if priority, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		oe.Priority = uint8(priority)
	}

	if size, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		oe.Size = size
	}

	if topic, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		oe.Topic = topic
	}

	return nil
}

// Offer lists a sender's forwardable candidates for the peer.
type Offer struct {
	Entries []OfferEntry
}

// MarshalCbor writes this Offer's CBOR representation.
func (o *Offer) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(o.Entries)), w); err != nil {
		return err
	}
	for i := range o.Entries {
		if err := cboring.Marshal(&o.Entries[i], w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalCbor reads a CBOR representation of an Offer.
func (o *Offer) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	o.Entries = make([]OfferEntry, n)
	for i := range o.Entries {
		if err := cboring.Unmarshal(&o.Entries[i], r); err != nil {
			return err
		}
	}
	return nil
}

// Want answers an Offer with the subset of ids the receiver lacks.
type Want struct {
	Ids []bundle.BundleID
}

// MarshalCbor writes this Want's CBOR representation.
func (wm *Want) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(wm.Ids)), w); err != nil {
		return err
	}
	for _, id := range wm.Ids {
		if err := cboring.WriteByteString(id.Bytes(), w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalCbor reads a CBOR representation of a Want.
func (wm *Want) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	wm.Ids = make([]bundle.BundleID, n)
	for i := range wm.Ids {
		if id, err := cboring.ReadByteString(r); err != nil {
			return err
		} else if len(id) != bundle.BundleIDLen {
			return fmt.Errorf("Want's id is %d bytes, not %d", len(id), bundle.BundleIDLen)
		} else {
			copy(wm.Ids[i][:], id)
		}
	}
	return nil
}

// Deliver carries one full bundle: the raw envelope wire bytes plus the
// hop distance and path it traveled, which are transit metadata and not
// part of the signed envelope.
type Deliver struct {
	Hops     uint64
	Path     []string
	Envelope []byte
}

// MarshalCbor writes this Deliver's CBOR representation.
func (d *Deliver) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(d.Hops, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(d.Path)), w); err != nil {
		return err
	}
	for _, hop := range d.Path {
		if err := cboring.WriteTextString(hop, w); err != nil {
			return err
		}
	}

	return cboring.WriteByteString(d.Envelope, w)
}

// UnmarshalCbor reads a CBOR representation of a Deliver.
func (d *Deliver) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("Deliver expected array of length 3, got %d", n)
	}

	if hops, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		d.Hops = hops
	}

	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else {
		d.Path = make([]string, n)
		for i := range d.Path {
			if hop, err := cboring.ReadTextString(r); err != nil {
				return err
			} else {
				d.Path[i] = hop
			}
		}
	}

	if envelope, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		d.Envelope = envelope
	}

	return nil
}

// Ack confirms that a delivered bundle was accepted into the local store,
// or was already present.
type Ack struct {
	Id bundle.BundleID
}

// MarshalCbor writes this Ack's CBOR representation.
func (a *Ack) MarshalCbor(w io.Writer) error {
	return cboring.WriteByteString(a.Id.Bytes(), w)
}

// UnmarshalCbor reads a CBOR representation of an Ack.
func (a *Ack) UnmarshalCbor(r io.Reader) error {
	if id, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(id) != bundle.BundleIDLen {
		return fmt.Errorf("Ack's id is %d bytes, not %d", len(id), bundle.BundleIDLen)
	} else {
		copy(a.Id[:], id)
	}
	return nil
}

// Nack reports a rejected delivery with a coarse reason.
type Nack struct {
	Id     bundle.BundleID
	Reason string
}

// MarshalCbor writes this Nack's CBOR representation.
func (n *Nack) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(n.Id.Bytes(), w); err != nil {
		return err
	}
	return cboring.WriteTextString(n.Reason, w)
}

// UnmarshalCbor reads a CBOR representation of a Nack.
func (n *Nack) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("Nack expected array of length 2, got %d", l)
	}

	if id, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(id) != bundle.BundleIDLen {
		return fmt.Errorf("Nack's id is %d bytes, not %d", len(id), bundle.BundleIDLen)
	} else {
		copy(n.Id[:], id)
	}

	if reason, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		n.Reason = reason
	}

	return nil
}
