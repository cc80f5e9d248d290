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

package value

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// String is a text value. Indexing, slicing and length operate on runes.
type String string

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

func (s String) Kind() Kind       { return KindString }
func (s String) TypeID() string   { return TypeString }
func (s String) AsString() string { return string(s) }
func (s String) Raw() any         { return string(s) }
func (s String) sealed()          {}

// AsNumber parses the text as a float. Non-numeric text is not applicable.
func (s String) AsNumber() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsBoolean is false for "", "false" in any case, and "0".
func (s String) AsBoolean() bool {
	raw := string(s)
	return raw != "" && !strings.EqualFold(raw, "false") && raw != "0"
}

// Property resolves, in order: slices ("1:3", "::-1"), integer indexes
// ("0", "-1"), then the named string properties. Names are case-sensitive.
func (s String) Property(name string) (Value, bool) {
	if strings.Contains(name, ":") {
		if v, ok := s.Slice(name); ok {
			return v, true
		}
	}

	if idx, err := strconv.Atoi(name); err == nil {
		return s.Index(idx), true
	}

	raw := string(s)
	switch name {
	case "length", "len", "count":
		return Number(utf8.RuneCountInString(raw)), true
	case "uppercase", "upper":
		return String(upperCaser.String(raw)), true
	case "lowercase", "lower":
		return String(lowerCaser.String(raw)), true
	case "trim", "trimmed":
		return String(strings.TrimSpace(raw)), true
	case "removeSpaces", "remove_space":
		return String(strings.ReplaceAll(raw, " ", "")), true
	case "isempty", "empty":
		return Boolean(raw == ""), true
	}
	return nil, false
}

// Index returns the character at idx. Negative indexes count from the end.
// Out of range yields Null.
func (s String) Index(idx int) Value {
	runes := []rune(string(s))
	if idx < 0 {
		idx += len(runes)
	}
	if idx < 0 || idx >= len(runes) {
		return Null
	}
	return String(runes[idx : idx+1])
}

// Slice applies a start:stop[:step] expression. It reports false when expr
// is not a slice expression at all (fewer than two or more than three
// parts). A step of zero yields Null.
func (s String) Slice(expr string) (Value, bool) {
	parts := strings.Split(expr, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, false
	}

	runes := []rune(string(s))
	length := len(runes)

	start, startSet := sliceBound(parts[0])
	stop, stopSet := sliceBound(parts[1])
	step := 1
	if len(parts) == 3 {
		if v, ok := sliceBound(parts[2]); ok {
			step = v
		}
	}
	if !startSet {
		start = 0
	}
	if !stopSet {
		stop = length
	}

	if step == 0 {
		return Null, true
	}
	if start == stop && step > 0 {
		return String(""), true
	}

	actualStart := clampIndex(start, length)
	actualStop := clampIndex(stop, length)

	var b strings.Builder
	if step > 0 {
		for i := actualStart; i < actualStop; i += step {
			b.WriteRune(runes[i])
		}
		return String(b.String()), true
	}

	// A zero (or omitted) start walks from the last character and a zero
	// (or omitted) stop walks through index 0.
	effectiveStart := actualStart
	if start == 0 {
		effectiveStart = length - 1
	}
	effectiveStop := actualStop
	if stop == 0 || !stopSet {
		effectiveStop = -1
	}
	for i := effectiveStart; i > effectiveStop; i += step {
		if i >= 0 && i < length {
			b.WriteRune(runes[i])
		}
	}
	return String(b.String()), true
}

func sliceBound(part string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(part))
	if err != nil {
		return 0, false
	}
	return v, true
}

func clampIndex(i, length int) int {
	if i < 0 {
		return max(0, length+i)
	}
	return min(i, length)
}
