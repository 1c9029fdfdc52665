// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

// EnvelopeBuilder is a fluent builder for Envelopes. Exactly one of TTL or
// ExpiresAt must be given; every other unset field falls back to a default:
// Normal priority, public audience, payloadType "application/octet-stream",
// hop limit 8 and an empty receipt policy.
//
//	env, err := bundle.Builder().
//		Topic("chat").
//		Payload([]byte("hello")).
//		TTL(time.Hour).
//		Build(priv)
type EnvelopeBuilder struct {
	envelope Envelope

	ttl        time.Duration
	hasTTL     bool
	hasExpires bool

	err error
}

// DefaultHopLimit is used when a builder does not set a hop limit.
const DefaultHopLimit = 8

// Builder creates a fresh EnvelopeBuilder.
func Builder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: Envelope{
			Priority:    Normal,
			Audience:    AudiencePublic,
			PayloadType: "application/octet-stream",
			HopLimit:    DefaultHopLimit,
		},
	}
}

// Topic sets the Envelope's topic.
func (bldr *EnvelopeBuilder) Topic(topic string) *EnvelopeBuilder {
	bldr.envelope.Topic = topic
	return bldr
}

// PayloadType sets the payload's schema name.
func (bldr *EnvelopeBuilder) PayloadType(payloadType string) *EnvelopeBuilder {
	bldr.envelope.PayloadType = payloadType
	return bldr
}

// Payload sets the Envelope's payload.
func (bldr *EnvelopeBuilder) Payload(payload []byte) *EnvelopeBuilder {
	bldr.envelope.Payload = payload
	return bldr
}

// Priority sets the Envelope's priority.
func (bldr *EnvelopeBuilder) Priority(priority Priority) *EnvelopeBuilder {
	bldr.envelope.Priority = priority
	return bldr
}

// Audience sets the Envelope's audience.
func (bldr *EnvelopeBuilder) Audience(audience Audience) *EnvelopeBuilder {
	bldr.envelope.Audience = audience
	return bldr
}

// HopLimit sets the maximum number of further forwards.
func (bldr *EnvelopeBuilder) HopLimit(hopLimit uint32) *EnvelopeBuilder {
	bldr.envelope.HopLimit = hopLimit
	return bldr
}

// ReceiptPolicy sets the requested receipt kinds.
func (bldr *EnvelopeBuilder) ReceiptPolicy(policy ReceiptPolicy) *EnvelopeBuilder {
	bldr.envelope.ReceiptPolicy = policy
	return bldr
}

// TTL derives the expiration from the creation instant. Mutually exclusive
// with ExpiresAt.
func (bldr *EnvelopeBuilder) TTL(ttl time.Duration) *EnvelopeBuilder {
	if ttl <= 0 {
		bldr.err = fmt.Errorf("ttl %v is not positive", ttl)
		return bldr
	}

	bldr.ttl = ttl
	bldr.hasTTL = true
	return bldr
}

// ExpiresAt sets the absolute expiration instant. Mutually exclusive with
// TTL.
func (bldr *EnvelopeBuilder) ExpiresAt(expiresAt time.Time) *EnvelopeBuilder {
	bldr.envelope.ExpiresAt = expiresAt.UTC()
	bldr.hasExpires = true
	return bldr
}

// CreatedAt overwrites the creation instant, which defaults to the time of
// the Build call. Mostly useful for tests.
func (bldr *EnvelopeBuilder) CreatedAt(createdAt time.Time) *EnvelopeBuilder {
	bldr.envelope.CreatedAt = createdAt.UTC()
	return bldr
}

// Build finalizes, validates and signs the Envelope.
func (bldr *EnvelopeBuilder) Build(priv ed25519.PrivateKey) (e Envelope, err error) {
	if bldr.err != nil {
		err = bldr.err
		return
	}

	if bldr.hasTTL == bldr.hasExpires {
		err = fmt.Errorf("exactly one of ttl and expiresAt must be given")
		return
	}

	e = bldr.envelope
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if bldr.hasTTL {
		e.ExpiresAt = e.CreatedAt.Add(bldr.ttl)
	}

	if err = e.Sign(priv); err != nil {
		return
	}
	err = e.CheckValid()
	return
}
