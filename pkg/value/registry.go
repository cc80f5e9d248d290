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
	"slices"
	"sync"
)

// Type ids for the builtin value types.
const (
	TypeAny              = "stepflow.type.any"
	TypeNull             = "stepflow.type.null"
	TypeNumber           = "stepflow.type.number"
	TypeBoolean          = "stepflow.type.boolean"
	TypeString           = "stepflow.type.string"
	TypeList             = "stepflow.type.list"
	TypeDictionary       = "stepflow.type.dictionary"
	TypeImage            = "stepflow.type.image"
	TypeDate             = "stepflow.type.date"
	TypeTime             = "stepflow.type.time"
	TypeCoordinate       = "stepflow.type.coordinate"
	TypeCoordinateRegion = "stepflow.type.coordinate_region"
)

// Type describes a value type and its declared properties.
type Type struct {
	ID         string
	Name       string
	Parent     string
	Properties []PropertyDef
}

// PropertyDef declares a property. TypeID is TypeAny when the concrete
// result type is inferred from the property name.
type PropertyDef struct {
	Name        string
	DisplayName string
	TypeID      string
}

// Registry holds type metadata for authoring-time hints. It is never
// consulted while a program runs.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates a registry pre-loaded with the builtin types.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Reset drops custom registrations and restores the builtin types.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]*Type)
	for _, t := range builtinTypes() {
		r.types[t.ID] = t
	}
}

// Register adds or replaces a type.
func (r *Registry) Register(t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.ID] = t
}

// Type returns the type for id, falling back to ANY for unknown ids.
func (r *Registry) Type(id string) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.types[id]; ok {
		return t
	}
	return r.types[TypeAny]
}

// Types returns all registered types sorted by id.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Type) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// PropertyType returns the result type of property on typeID. The declared
// property type wins unless it is ANY; otherwise the type is inferred from
// the property name. Returns nil when nothing is known.
func (r *Registry) PropertyType(typeID, property string) *Type {
	t := r.Type(typeID)
	for _, p := range t.Properties {
		if p.Name == property && p.TypeID != TypeAny {
			return r.Type(p.TypeID)
		}
	}
	inferred := inferPropertyType(typeID, property)
	if inferred == "" {
		return nil
	}
	return r.Type(inferred)
}

// IsTypeOrAnyPropertyAccepted reports whether typeID itself, or any of its
// properties, yields one of the accepted type ids. An empty accepted set
// accepts everything.
func (r *Registry) IsTypeOrAnyPropertyAccepted(typeID string, accepted []string) bool {
	if len(accepted) == 0 {
		return true
	}
	t := r.Type(typeID)
	if slices.Contains(accepted, t.ID) {
		return true
	}
	for _, p := range t.Properties {
		if pt := r.PropertyType(typeID, p.Name); pt != nil && slices.Contains(accepted, pt.ID) {
			return true
		}
	}
	return false
}

// AcceptedProperties returns the properties of typeID whose result type is
// in accepted. An empty accepted set returns every property.
func (r *Registry) AcceptedProperties(typeID string, accepted []string) []PropertyDef {
	t := r.Type(typeID)
	if len(accepted) == 0 {
		return slices.Clone(t.Properties)
	}
	var out []PropertyDef
	for _, p := range t.Properties {
		if pt := r.PropertyType(typeID, p.Name); pt != nil && slices.Contains(accepted, pt.ID) {
			out = append(out, p)
		}
	}
	return out
}

func props(defs ...[2]string) []PropertyDef {
	out := make([]PropertyDef, len(defs))
	for i, d := range defs {
		out[i] = PropertyDef{Name: d[0], DisplayName: d[1], TypeID: TypeAny}
	}
	return out
}

func builtinTypes() []*Type {
	return []*Type{
		{ID: TypeAny, Name: "Any"},
		{ID: TypeNull, Name: "Null", Parent: TypeAny},
		{ID: TypeNumber, Name: "Number", Parent: TypeAny, Properties: props(
			[2]string{"int", "Integer part"},
			[2]string{"round", "Rounded"},
			[2]string{"abs", "Absolute value"},
		)},
		{ID: TypeBoolean, Name: "Boolean", Parent: TypeAny, Properties: props(
			[2]string{"not", "Negated"},
		)},
		{ID: TypeString, Name: "Text", Parent: TypeAny, Properties: props(
			[2]string{"length", "Length"},
			[2]string{"uppercase", "Uppercase"},
			[2]string{"lowercase", "Lowercase"},
			[2]string{"trim", "Trimmed"},
			[2]string{"removeSpaces", "Without spaces"},
			[2]string{"isempty", "Is empty"},
		)},
		{ID: TypeList, Name: "List", Parent: TypeAny, Properties: props(
			[2]string{"count", "Count"},
			[2]string{"first", "First item"},
			[2]string{"last", "Last item"},
			[2]string{"isempty", "Is empty"},
			[2]string{"random", "Random item"},
		)},
		{ID: TypeDictionary, Name: "Dictionary", Parent: TypeAny, Properties: props(
			[2]string{"count", "Count"},
			[2]string{"keys", "Keys"},
			[2]string{"values", "Values"},
		)},
		{ID: TypeImage, Name: "Image", Parent: TypeAny, Properties: props(
			[2]string{"width", "Width"},
			[2]string{"height", "Height"},
			[2]string{"path", "File path"},
			[2]string{"uri", "URI"},
			[2]string{"size", "File size"},
			[2]string{"name", "File name"},
		)},
		{ID: TypeDate, Name: "Date", Parent: TypeAny, Properties: props(
			[2]string{"year", "Year"},
			[2]string{"month", "Month"},
			[2]string{"day", "Day"},
			[2]string{"weekday", "Weekday (1-7)"},
			[2]string{"timestamp", "Timestamp"},
		)},
		{ID: TypeTime, Name: "Time", Parent: TypeAny, Properties: props(
			[2]string{"hour", "Hour"},
			[2]string{"minute", "Minute"},
		)},
		{ID: TypeCoordinate, Name: "Coordinate", Parent: TypeAny, Properties: props(
			[2]string{"x", "X"},
			[2]string{"y", "Y"},
		)},
		{ID: TypeCoordinateRegion, Name: "Region", Parent: TypeAny, Properties: []PropertyDef{
			{Name: "left", DisplayName: "Left", TypeID: TypeAny},
			{Name: "top", DisplayName: "Top", TypeID: TypeAny},
			{Name: "right", DisplayName: "Right", TypeID: TypeAny},
			{Name: "bottom", DisplayName: "Bottom", TypeID: TypeAny},
			{Name: "width", DisplayName: "Width", TypeID: TypeAny},
			{Name: "height", DisplayName: "Height", TypeID: TypeAny},
			{Name: "center", DisplayName: "Center", TypeID: TypeCoordinate},
			{Name: "center_x", DisplayName: "Center X", TypeID: TypeAny},
			{Name: "center_y", DisplayName: "Center Y", TypeID: TypeAny},
		}},
	}
}

// inferPropertyType is the fixed name-based inference table.
func inferPropertyType(typeID, property string) string {
	switch typeID {
	case TypeString:
		switch property {
		case "length", "len", "count":
			return TypeNumber
		case "uppercase", "upper", "lowercase", "lower", "trim", "trimmed", "removeSpaces", "remove_space":
			return TypeString
		case "isempty", "empty":
			return TypeBoolean
		}
	case TypeNumber:
		switch property {
		case "int", "round", "abs", "length", "len":
			return TypeNumber
		}
	case TypeBoolean:
		if property == "not" {
			return TypeBoolean
		}
	case TypeList:
		switch property {
		case "count", "length", "size":
			return TypeNumber
		case "isempty", "empty":
			return TypeBoolean
		}
	case TypeDictionary:
		switch property {
		case "count", "length", "size":
			return TypeNumber
		case "isempty", "empty":
			return TypeBoolean
		case "keys", "values":
			return TypeList
		}
	case TypeImage:
		switch property {
		case "width", "height", "size":
			return TypeNumber
		case "path", "uri", "name":
			return TypeString
		}
	case TypeDate:
		switch property {
		case "year", "month", "day", "weekday", "timestamp":
			return TypeNumber
		}
	case TypeTime:
		switch property {
		case "hour", "minute":
			return TypeNumber
		}
	case TypeCoordinate:
		switch property {
		case "x", "y":
			return TypeNumber
		}
	case TypeCoordinateRegion:
		switch property {
		case "left", "top", "right", "bottom", "width", "w", "height", "h", "center_x", "x", "center_y", "y":
			return TypeNumber
		case "center", "center_point":
			return TypeCoordinate
		case "as_string", "string":
			return TypeString
		case "is_empty", "isEmpty", "is_valid", "isValid":
			return TypeBoolean
		}
	}
	return ""
}
