// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

// The canonical form is the normative wire encoding of an Envelope without
// its signature. Field order and types are part of the protocol and MUST
// NOT change without a version bump:
//
//	audience      uint8
//	createdAt     uint64, big endian, milliseconds since Unix epoch (UTC)
//	expiresAt     uint64, big endian, milliseconds since Unix epoch (UTC)
//	hopLimit      uint32, big endian
//	payload       uint32 big endian length || bytes
//	payloadType   uint32 big endian length || UTF-8 bytes
//	priority      uint8
//	producer      uint32 big endian length || bytes
//	receiptPolicy uint8
//	topic         uint32 big endian length || UTF-8 bytes
//
// Fields appear in the lexical order of their names. Both the BundleID and
// the signature are computed over exactly these bytes.

const (
	// maxVarFieldLen bounds every length-prefixed field during decoding to
	// keep a malformed frame from forcing absurd allocations.
	maxVarFieldLen = 1 << 30

	// maxShortStringLen bounds topic and payloadType.
	maxShortStringLen = 255
)

// CanonicalizationError reports an Envelope which cannot be encoded into
// its canonical form.
type CanonicalizationError struct {
	Field  string
	Reason string
}

func (ce *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalization failed at %s: %s", ce.Field, ce.Reason)
}

func timeToMillis(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UTC().UnixMilli())
}

func millisToTime(ms uint64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

func writeBytesField(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readBytesField(r io.Reader, max int) ([]byte, error) {
	var l uint32
	if err := binary.Read(r, binary.BigEndian, &l); err != nil {
		return nil, err
	}
	if max > 0 && int(l) > max {
		return nil, fmt.Errorf("field length %d exceeds limit %d", l, max)
	}

	data := make([]byte, l)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeStringField(w io.Writer, name, s string) error {
	if !utf8.ValidString(s) {
		return &CanonicalizationError{Field: name, Reason: "not valid UTF-8"}
	}
	if len(s) > maxShortStringLen {
		return &CanonicalizationError{
			Field:  name,
			Reason: fmt.Sprintf("length %d exceeds %d", len(s), maxShortStringLen),
		}
	}
	return writeBytesField(w, []byte(s))
}

func readStringField(r io.Reader, name string) (string, error) {
	data, err := readBytesField(r, maxShortStringLen)
	if err != nil {
		return "", fmt.Errorf("reading %s failed: %w", name, err)
	}
	if !utf8.Valid(data) {
		return "", &CanonicalizationError{Field: name, Reason: "not valid UTF-8"}
	}
	return string(data), nil
}

// WriteCanonical writes the Envelope's canonical form, signature excluded.
func (e *Envelope) WriteCanonical(w io.Writer) error {
	if !e.Audience.IsValid() {
		return &CanonicalizationError{Field: "audience", Reason: "undefined value"}
	}
	if !e.Priority.IsValid() {
		return &CanonicalizationError{Field: "priority", Reason: "undefined value"}
	}
	if !e.ReceiptPolicy.IsValid() {
		return &CanonicalizationError{Field: "receiptPolicy", Reason: "undefined bits"}
	}
	if len(e.Payload) > maxVarFieldLen {
		return &CanonicalizationError{Field: "payload", Reason: "too large"}
	}

	if _, err := w.Write([]byte{byte(e.Audience)}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, timeToMillis(e.CreatedAt)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, timeToMillis(e.ExpiresAt)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, e.HopLimit); err != nil {
		return err
	}
	if err := writeBytesField(w, e.Payload); err != nil {
		return err
	}
	if err := writeStringField(w, "payloadType", e.PayloadType); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(e.Priority)}); err != nil {
		return err
	}
	if err := writeBytesField(w, e.Producer); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(e.ReceiptPolicy)}); err != nil {
		return err
	}
	return writeStringField(w, "topic", e.Topic)
}

// CanonicalBytes returns the Envelope's canonical form, signature excluded.
func (e *Envelope) CanonicalBytes() ([]byte, error) {
	var buff bytes.Buffer
	if err := e.WriteCanonical(&buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// readCanonicalFields populates all fields but the signature from r.
func (e *Envelope) readCanonicalFields(r io.Reader) error {
	var small [1]byte

	if _, err := io.ReadFull(r, small[:]); err != nil {
		return fmt.Errorf("reading audience failed: %w", err)
	}
	e.Audience = Audience(small[0])

	var createdMs, expiresMs uint64
	if err := binary.Read(r, binary.BigEndian, &createdMs); err != nil {
		return fmt.Errorf("reading createdAt failed: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &expiresMs); err != nil {
		return fmt.Errorf("reading expiresAt failed: %w", err)
	}
	e.CreatedAt = millisToTime(createdMs)
	e.ExpiresAt = millisToTime(expiresMs)

	if err := binary.Read(r, binary.BigEndian, &e.HopLimit); err != nil {
		return fmt.Errorf("reading hopLimit failed: %w", err)
	}

	var err error
	if e.Payload, err = readBytesField(r, maxVarFieldLen); err != nil {
		return fmt.Errorf("reading payload failed: %w", err)
	}
	if e.PayloadType, err = readStringField(r, "payloadType"); err != nil {
		return err
	}

	if _, err := io.ReadFull(r, small[:]); err != nil {
		return fmt.Errorf("reading priority failed: %w", err)
	}
	e.Priority = Priority(small[0])

	if e.Producer, err = readBytesField(r, maxShortStringLen); err != nil {
		return fmt.Errorf("reading producer failed: %w", err)
	}

	if _, err := io.ReadFull(r, small[:]); err != nil {
		return fmt.Errorf("reading receiptPolicy failed: %w", err)
	}
	e.ReceiptPolicy = ReceiptPolicy(small[0])

	if e.Topic, err = readStringField(r, "topic"); err != nil {
		return err
	}

	return nil
}
