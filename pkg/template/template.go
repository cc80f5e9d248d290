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

// Package template parses step parameters that embed variable references.
//
// Two reference families are recognised:
//
//	{{stepId.outputId.prop}}   output of an upstream step
//	[[name.prop]]              named variable
//
// A backslash escapes one of { } [ ] \ so it is taken literally. Any other
// backslash sequence is kept as written. An opening delimiter with no
// matching close is treated as text.
package template

import "strings"

// Segment is one piece of a parsed template: a Literal or a Reference.
type Segment interface {
	segment()
}

// Literal is plain text.
type Literal struct {
	Text string
}

// Reference is an embedded variable reference.
type Reference struct {
	// Path is the dot-split, trimmed content between the delimiters.
	Path []string
	// Raw is the reference exactly as written, delimiters included.
	Raw string
	// Named is true for [[ ]] references.
	Named bool
}

func (Literal) segment()   {}
func (Reference) segment() {}

// Root returns the first path element: the step id or variable name.
func (r Reference) Root() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[0]
}

// Parse splits s into literal and reference segments in a single pass.
// Adjacent text is merged into one Literal.
func Parse(s string) []Segment {
	p := parser{input: s}
	return p.parse()
}

type parser struct {
	input    string
	segments []Segment
	buf      strings.Builder
}

func (p *parser) parse() []Segment {
	in := p.input
	i := 0
	for i < len(in) {
		c := in[i]

		if c == '\\' && i+1 < len(in) && isSpecial(in[i+1]) {
			p.buf.WriteByte(in[i+1])
			i += 2
			continue
		}

		if (c == '{' || c == '[') && i+1 < len(in) && in[i+1] == c {
			i = p.reference(i, c)
			continue
		}

		p.buf.WriteByte(c)
		i++
	}
	p.flush()
	return p.segments
}

// reference parses a reference opened at start and returns the index just
// past it.
func (p *parser) reference(start int, open byte) int {
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	end := findClose(p.input, start+2, open, closeCh)
	if end == -1 {
		p.buf.WriteString(p.input[start : start+2])
		return start + 2
	}

	raw := p.input[start : end+2]
	content := strings.TrimSpace(p.input[start+2 : end])
	if content == "" {
		p.buf.WriteString(raw)
		return end + 2
	}

	parts := strings.Split(content, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	p.flush()
	p.segments = append(p.segments, Reference{Path: parts, Raw: raw, Named: open == '['})
	return end + 2
}

func (p *parser) flush() {
	if p.buf.Len() == 0 {
		return
	}
	p.segments = append(p.segments, Literal{Text: p.buf.String()})
	p.buf.Reset()
}

// findClose returns the index of the closing pair for an opener of the
// same family, skipping nested pairs. Returns -1 when unterminated.
func findClose(s string, from int, open, closeCh byte) int {
	depth := 0
	for j := from; j < len(s)-1; {
		switch {
		case s[j] == open && s[j+1] == open:
			depth++
			j += 2
		case s[j] == closeCh && s[j+1] == closeCh:
			if depth == 0 {
				return j
			}
			depth--
			j += 2
		default:
			j++
		}
	}
	return -1
}

func isSpecial(c byte) bool {
	switch c {
	case '{', '}', '[', ']', '\\':
		return true
	}
	return false
}
