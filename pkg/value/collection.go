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
	"math/rand/v2"
	"slices"
	"strconv"
)

// List is an ordered sequence of values.
type List struct {
	items []Value
}

// NewList builds a list. Nil items become Null.
func NewList(items ...Value) *List {
	cp := make([]Value, len(items))
	for i, it := range items {
		if it == nil {
			it = Null
		}
		cp[i] = it
	}
	return &List{items: cp}
}

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// At returns the item at i, or Null when out of range.
func (l *List) At(i int) Value {
	if i < 0 || i >= len(l.items) {
		return Null
	}
	return l.items[i]
}

// Items returns a copy of the items.
func (l *List) Items() []Value { return slices.Clone(l.items) }

func (l *List) Kind() Kind      { return KindList }
func (l *List) TypeID() string  { return TypeList }
func (l *List) Raw() any        { return l.Items() }
func (l *List) AsBoolean() bool { return len(l.items) > 0 }
func (l *List) sealed()         {}

func (l *List) AsString() string {
	return marshalString(ToNative(l))
}

func (l *List) AsNumber() (float64, bool) {
	return 0, false
}

// Property implements count, first, last, isempty, random and integer
// indexes (negative indexes count from the end).
func (l *List) Property(name string) (Value, bool) {
	if idx, err := strconv.Atoi(name); err == nil {
		if idx < 0 {
			idx += len(l.items)
		}
		return l.At(idx), true
	}

	switch name {
	case "count", "length", "size":
		return Number(len(l.items)), true
	case "first":
		return l.At(0), true
	case "last":
		return l.At(len(l.items) - 1), true
	case "isempty", "empty":
		return Boolean(len(l.items) == 0), true
	case "random":
		if len(l.items) == 0 {
			return Null, true
		}
		return l.items[rand.IntN(len(l.items))], true
	}
	return nil, false
}

// Dictionary is a string-keyed map of values.
type Dictionary struct {
	entries map[string]Value
}

// NewDictionary builds a dictionary. Nil entries become Null.
func NewDictionary(entries map[string]Value) *Dictionary {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		if v == nil {
			v = Null
		}
		cp[k] = v
	}
	return &Dictionary{entries: cp}
}

// Get returns the entry for key.
func (d *Dictionary) Get(key string) (Value, bool) {
	v, ok := d.entries[key]
	return v, ok
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Keys returns the keys in sorted order.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Entries returns a copy of the underlying map.
func (d *Dictionary) Entries() map[string]Value {
	cp := make(map[string]Value, len(d.entries))
	for k, v := range d.entries {
		cp[k] = v
	}
	return cp
}

func (d *Dictionary) Kind() Kind      { return KindDictionary }
func (d *Dictionary) TypeID() string  { return TypeDictionary }
func (d *Dictionary) Raw() any        { return d.Entries() }
func (d *Dictionary) AsBoolean() bool { return len(d.entries) > 0 }
func (d *Dictionary) sealed()         {}

func (d *Dictionary) AsString() string {
	return marshalString(ToNative(d))
}

func (d *Dictionary) AsNumber() (float64, bool) {
	return 0, false
}

// Property looks up a key first, then count, keys, values and isempty.
func (d *Dictionary) Property(name string) (Value, bool) {
	if v, ok := d.entries[name]; ok {
		return v, true
	}

	switch name {
	case "count", "length", "size":
		return Number(len(d.entries)), true
	case "keys":
		keys := d.Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = String(k)
		}
		return NewList(items...), true
	case "values":
		keys := d.Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = d.entries[k]
		}
		return NewList(items...), true
	case "isempty", "empty":
		return Boolean(len(d.entries) == 0), true
	}
	return nil, false
}
