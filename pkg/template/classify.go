// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package template

import "strings"

// Kind classifies a raw parameter string.
type Kind int

const (
	// KindPlain contains no reference syntax.
	KindPlain Kind = iota
	// KindMagic is exactly one {{ }} reference and nothing else.
	KindMagic
	// KindNamed is exactly one [[ ]] reference and nothing else.
	KindNamed
	// KindComplex mixes references with text or holds several references.
	KindComplex
)

func (k Kind) String() string {
	switch k {
	case KindMagic:
		return "magic"
	case KindNamed:
		return "named"
	case KindComplex:
		return "complex"
	default:
		return "plain"
	}
}

// Classify reports how s should be resolved. For pure references the parsed
// Reference is returned so callers can resolve it without re-parsing.
func Classify(s string) (Reference, Kind) {
	if !HasReference(s) {
		return Reference{}, KindPlain
	}

	segs := Parse(s)
	refs := 0
	var only Reference
	for _, seg := range segs {
		if ref, ok := seg.(Reference); ok {
			refs++
			only = ref
		}
	}

	switch {
	case refs == 0:
		return Reference{}, KindPlain
	case len(segs) == 1 && refs == 1 && only.Raw == s:
		if only.Named {
			return only, KindNamed
		}
		return only, KindMagic
	}
	return Reference{}, KindComplex
}

// HasReference is a cheap pre-check for reference openers.
func HasReference(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "[[")
}

// References returns every reference in s, in order.
func References(s string) []Reference {
	var out []Reference
	for _, seg := range Parse(s) {
		if ref, ok := seg.(Reference); ok {
			out = append(out, ref)
		}
	}
	return out
}

// Render concatenates segments, resolving each Reference with lookup.
func Render(segs []Segment, lookup func(Reference) string) string {
	var b strings.Builder
	for _, seg := range segs {
		switch s := seg.(type) {
		case Literal:
			b.WriteString(s.Text)
		case Reference:
			b.WriteString(lookup(s))
		}
	}
	return b.String()
}
