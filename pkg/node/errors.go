// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import "fmt"

// Coarse failure reasons, recorded as quarantine reasons and sent to peers
// inside a NACK. They deliberately carry no detail beyond the class, so a
// rejected delivery does not become a verification oracle.
const (
	ReasonBadSignature = "signature"
	ReasonIdMismatch   = "id-mismatch"
	ReasonAudience     = "audience"
	ReasonExpired      = "expired"
	ReasonHopLimit     = "hop-limit"
	ReasonTooLarge     = "too-large"
	ReasonDuplicate    = "duplicate"
	ReasonQueueFull    = "queue-full"
	ReasonMalformed    = "malformed"
)

// ValidationError reports a badly shaped local submission. It is returned
// synchronously to the producer and never touches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s: %s", err.Field, err.Reason)
}

// AuthError reports a principal not entitled to an audience.
type AuthError struct {
	Reason string
}

func (err *AuthError) Error() string {
	return "not authorized: " + err.Reason
}

// IntegrityError reports a failed signature, id or canonicalization check.
type IntegrityError struct {
	Reason string
}

func (err *IntegrityError) Error() string {
	return "integrity check failed: " + err.Reason
}

// PolicyError reports a bundle violating an admission policy: expired on
// arrival, hop limit used up or payload too large.
type PolicyError struct {
	Reason string
}

func (err *PolicyError) Error() string {
	return "policy check failed: " + err.Reason
}

// ResourceError reports an exhausted or unavailable resource. Peers may
// retry later; producers see it synchronously.
type ResourceError struct {
	Reason string
}

func (err *ResourceError) Error() string {
	return "resource exhausted: " + err.Reason
}

// nackReason maps an admission error to the coarse NACK reason.
func nackReason(err error) string {
	switch e := err.(type) {
	case *AuthError:
		return e.Reason
	case *IntegrityError:
		return e.Reason
	case *PolicyError:
		return e.Reason
	case *ResourceError:
		return e.Reason
	default:
		return ReasonMalformed
	}
}
