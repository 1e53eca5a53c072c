// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package security implements the capability check the gateway applies
// before dispatching a request. Capabilities are dot-separated patterns;
// a segment of exactly "*" matches one or more capability segments.
package security

import "strings"

// CapabilitySet is a set of capability patterns granted to a caller.
type CapabilitySet struct {
	patterns []string
}

// NewCapabilitySet constructs a CapabilitySet from the provided patterns.
func NewCapabilitySet(patterns ...string) CapabilitySet {
	copied := append([]string(nil), patterns...)
	return CapabilitySet{patterns: copied}
}

// Contains reports whether any pattern in the set matches cap.
func (s CapabilitySet) Contains(cap string) bool {
	for _, pattern := range s.patterns {
		if matchCapability(pattern, cap) {
			return true
		}
	}
	return false
}

// Empty reports whether the set grants nothing.
func (s CapabilitySet) Empty() bool { return len(s.patterns) == 0 }

// matchCapability reports whether cap matches pattern. Matching is
// dot-segment aware: a segment exactly "*" matches one or more capability
// segments; other segments must match exactly. Malformed dotted strings
// (leading/trailing dot or consecutive dots) never match.
func matchCapability(pattern, cap string) bool {
	if pattern == "" || cap == "" {
		return false
	}
	if !validDotted(pattern) || !validDotted(cap) {
		return false
	}

	return matchSegments(strings.Split(pattern, "."), strings.Split(cap, "."))
}

func matchSegments(pattern, cap []string) bool {
	if len(pattern) == 0 {
		return len(cap) == 0
	}
	if len(cap) == 0 {
		return false
	}

	if pattern[0] == "*" {
		for skip := 1; skip <= len(cap); skip++ {
			if matchSegments(pattern[1:], cap[skip:]) {
				return true
			}
		}
		return false
	}

	if pattern[0] != cap[0] {
		return false
	}
	return matchSegments(pattern[1:], cap[1:])
}

func validDotted(s string) bool {
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	return !strings.Contains(s, "..")
}
