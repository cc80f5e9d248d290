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

// Package value implements the runtime value system used for variable
// resolution.
//
// Every value a step produces or consumes is one of a closed set of variants.
// Each variant coerces to a string, optionally to a number or boolean, and
// exposes named properties that references walk with dotted paths such as
// {{step.output.length}}.
package value

import (
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindBoolean
	KindString
	KindList
	KindDictionary
	KindDate
	KindTime
	KindCoordinate
	KindRegion
	KindImage
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDictionary:
		return "dictionary"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindCoordinate:
		return "coordinate"
	case KindRegion:
		return "coordinate_region"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Value is an immutable runtime value.
//
// AsString always succeeds. AsNumber reports false when the value has no
// numeric interpretation, which is distinct from a zero result. Property
// reports false when the property is not defined for the value; Null
// answers every property with Null so chained lookups stay safe.
type Value interface {
	Kind() Kind
	TypeID() string
	AsString() string
	AsNumber() (float64, bool)
	AsBoolean() bool
	Raw() any
	Property(name string) (Value, bool)

	sealed()
}

type nullValue struct{}

// Null is the single null value.
var Null Value = nullValue{}

func (nullValue) Kind() Kind                    { return KindNull }
func (nullValue) TypeID() string                { return TypeNull }
func (nullValue) AsString() string              { return "" }
func (nullValue) AsNumber() (float64, bool)     { return 0, false }
func (nullValue) AsBoolean() bool               { return false }
func (nullValue) Raw() any                      { return nil }
func (nullValue) Property(string) (Value, bool) { return Null, true }
func (nullValue) sealed()                       {}

// IsNull reports whether v is nil or the Null value.
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// Number is a numeric value. All numbers are float64 at runtime.
type Number float64

func (n Number) Kind() Kind                { return KindNumber }
func (n Number) TypeID() string            { return TypeNumber }
func (n Number) AsNumber() (float64, bool) { return float64(n), true }
func (n Number) AsBoolean() bool           { return n != 0 }
func (n Number) Raw() any                  { return float64(n) }
func (n Number) sealed()                   {}

// AsString renders integral numbers without a fractional part.
func (n Number) AsString() string {
	return formatNumber(float64(n))
}

// Property implements the number properties int, round, abs and length.
func (n Number) Property(name string) (Value, bool) {
	f := float64(n)
	switch name {
	case "int":
		return Number(math.Trunc(f)), true
	case "round":
		return Number(math.Round(f)), true
	case "abs":
		return Number(math.Abs(f)), true
	case "length", "len":
		return Number(len(strconv.FormatInt(int64(math.Trunc(f)), 10))), true
	}
	return nil, false
}

func formatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Boolean is a true/false value.
type Boolean bool

func (b Boolean) Kind() Kind      { return KindBoolean }
func (b Boolean) TypeID() string  { return TypeBoolean }
func (b Boolean) AsBoolean() bool { return bool(b) }
func (b Boolean) Raw() any        { return bool(b) }
func (b Boolean) sealed()         {}

func (b Boolean) AsString() string {
	return strconv.FormatBool(bool(b))
}

func (b Boolean) AsNumber() (float64, bool) {
	if b {
		return 1, true
	}
	return 0, true
}

// Property implements "not".
func (b Boolean) Property(name string) (Value, bool) {
	if name == "not" {
		return !b, true
	}
	return nil, false
}

// marshalString renders composite values as JSON for string coercion.
func marshalString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
