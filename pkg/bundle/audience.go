// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import "fmt"

// Audience is the producer-declared visibility class of an Envelope. It is
// enforced twice: on admission against the producer's key and on forwarding
// against the peer's key, both through keyring membership.
type Audience uint8

const (
	// AudiencePublic bundles are visible to everybody.
	AudiencePublic Audience = 0

	// AudienceLocal bundles require at least keyring membership "local".
	AudienceLocal Audience = 1

	// AudienceTrusted bundles require at least keyring membership "trusted".
	AudienceTrusted Audience = 2

	// AudiencePrivate bundles require keyring membership "verified".
	AudiencePrivate Audience = 3
)

// IsValid checks this Audience for a defined value.
func (a Audience) IsValid() bool {
	return a <= AudiencePrivate
}

func (a Audience) String() string {
	switch a {
	case AudiencePublic:
		return "public"
	case AudienceLocal:
		return "local"
	case AudienceTrusted:
		return "trusted"
	case AudiencePrivate:
		return "private"
	default:
		return fmt.Sprintf("audience(%d)", uint8(a))
	}
}

// ParseAudience returns the Audience named by s.
func ParseAudience(s string) (Audience, error) {
	switch s {
	case "public":
		return AudiencePublic, nil
	case "local":
		return AudienceLocal, nil
	case "trusted":
		return AudienceTrusted, nil
	case "private":
		return AudiencePrivate, nil
	default:
		return 0, fmt.Errorf("unknown audience %q", s)
	}
}
