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
	"fmt"
	"reflect"
	"strings"
	"time"
)

// From wraps an arbitrary Go value. It never fails: values with no natural
// variant become their fmt string form.
func From(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case Value:
		return t
	case bool:
		return Boolean(t)
	case string:
		return String(t)
	case int:
		return Number(t)
	case int8:
		return Number(t)
	case int16:
		return Number(t)
	case int32:
		return Number(t)
	case int64:
		return Number(t)
	case uint:
		return Number(t)
	case uint8:
		return Number(t)
	case uint16:
		return Number(t)
	case uint32:
		return Number(t)
	case uint64:
		return Number(t)
	case float32:
		return Number(t)
	case float64:
		return Number(t)
	case time.Time:
		return NewDate(t)
	case []Value:
		return NewList(t...)
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = From(it)
		}
		return NewList(items...)
	case []string:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = String(it)
		}
		return NewList(items...)
	case map[string]Value:
		return NewDictionary(t)
	case map[string]any:
		entries := make(map[string]Value, len(t))
		for k, it := range t {
			entries[k] = From(it)
		}
		return NewDictionary(entries)
	}
	return fromReflect(v)
}

func fromReflect(v any) Value {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null
		}
		return From(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = From(rv.Index(i).Interface())
		}
		return NewList(items...)
	case reflect.Map:
		entries := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries[fmt.Sprint(iter.Key().Interface())] = From(iter.Value().Interface())
		}
		return NewDictionary(entries)
	}
	return String(fmt.Sprint(v))
}

// FromMap wraps every entry of m.
func FromMap(m map[string]any) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = From(v)
	}
	return out
}

// ToNative converts v into plain JSON-compatible Go values: nil, float64,
// bool, string, []any and map[string]any. Domain values become their
// string or map forms.
func ToNative(v Value) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case nullValue:
		return nil
	case Number:
		return float64(t)
	case Boolean:
		return bool(t)
	case String:
		return string(t)
	case *List:
		out := make([]any, len(t.items))
		for i, it := range t.items {
			out[i] = ToNative(it)
		}
		return out
	case *Dictionary:
		out := make(map[string]any, len(t.entries))
		for k, it := range t.entries {
			out[k] = ToNative(it)
		}
		return out
	case Date:
		return t.t.Format(time.RFC3339)
	case Clock:
		return t.AsString()
	case Coordinate:
		return map[string]any{"x": t.X, "y": t.Y}
	case Region:
		return map[string]any{"left": t.Left, "top": t.Top, "right": t.Right, "bottom": t.Bottom}
	case *Image:
		return t.path
	}
	return v.AsString()
}

// Walk follows a property path from root. A missing property collapses to
// Null for the remainder of the walk.
func Walk(root Value, path []string) Value {
	cur := root
	if cur == nil {
		cur = Null
	}
	for _, name := range path {
		next, ok := cur.Property(name)
		if !ok || next == nil {
			next = Null
		}
		cur = next
	}
	return cur
}

// Equal compares two values. Numbers compare numerically when both sides
// coerce to numbers; everything else compares by string form.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if a.Kind() == KindBoolean || b.Kind() == KindBoolean {
		return a.AsBoolean() == b.AsBoolean()
	}
	if an, ok := a.AsNumber(); ok {
		if bn, ok := b.AsNumber(); ok {
			return an == bn
		}
	}
	return a.AsString() == b.AsString()
}

// Compare orders two values numerically when possible, otherwise by string
// form. It returns -1, 0 or 1.
func Compare(a, b Value) int {
	if a == nil {
		a = Null
	}
	if b == nil {
		b = Null
	}
	if an, ok := a.AsNumber(); ok {
		if bn, ok := b.AsNumber(); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(a.AsString(), b.AsString())
}

// Contains reports whether haystack contains needle: list membership,
// dictionary key presence, or substring match.
func Contains(haystack, needle Value) bool {
	switch h := haystack.(type) {
	case *List:
		for _, it := range h.items {
			if Equal(it, needle) {
				return true
			}
		}
		return false
	case *Dictionary:
		_, ok := h.entries[needle.AsString()]
		return ok
	}
	if IsNull(haystack) {
		return false
	}
	return strings.Contains(haystack.AsString(), needle.AsString())
}
