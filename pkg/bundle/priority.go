// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import "fmt"

// Priority is the coarse four-level forwarding class of an Envelope. It is
// not a bandwidth reservation; it only orders selection and eviction.
type Priority uint8

const (
	// Low priority bundles are forwarded and retained last.
	Low Priority = 1

	// Normal is the default priority.
	Normal Priority = 2

	// Perishable bundles are ordered by their expiration before everything
	// else of their class, as their value decays with time.
	Perishable Priority = 3

	// Emergency preempts all other priorities and is never a cache eviction
	// victim while within its lifetime.
	Emergency Priority = 4
)

// IsValid checks this Priority for a defined value.
func (p Priority) IsValid() bool {
	return p >= Low && p <= Emergency
}

// Weight of this Priority, used by the eviction utility score.
func (p Priority) Weight() float64 {
	switch p {
	case Emergency:
		return 8
	case Perishable:
		return 4
	case Normal:
		return 2
	default:
		return 1
	}
}

// Min returns the lower of two Priorities.
func (p Priority) Min(other Priority) Priority {
	if other < p {
		return other
	}
	return p
}

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case Perishable:
		return "perishable"
	case Emergency:
		return "emergency"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// ParsePriority returns the Priority named by s.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return Low, nil
	case "normal":
		return Normal, nil
	case "perishable":
		return Perishable, nil
	case "emergency":
		return Emergency, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}
