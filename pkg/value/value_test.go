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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_Coercion(t *testing.T) {
	tests := []struct {
		in       string
		wantBool bool
	}{
		{"", false},
		{"false", false},
		{"FALSE", false},
		{"False", false},
		{"0", false},
		{"00", true},
		{"no", true},
		{"true", true},
		{" ", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.wantBool, String(tt.in).AsBoolean())
		})
	}

	n, ok := String("3.5").AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 3.5, n)

	_, ok = String("abc").AsNumber()
	assert.False(t, ok, "non-numeric text must not coerce")

	n, ok = String("0").AsNumber()
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestString_Properties(t *testing.T) {
	s := String("  Hello World ")

	tests := []struct {
		prop string
		want Value
	}{
		{"length", Number(14)},
		{"len", Number(14)},
		{"count", Number(14)},
		{"uppercase", String("  HELLO WORLD ")},
		{"upper", String("  HELLO WORLD ")},
		{"lowercase", String("  hello world ")},
		{"lower", String("  hello world ")},
		{"trim", String("Hello World")},
		{"trimmed", String("Hello World")},
		{"removeSpaces", String("HelloWorld")},
		{"remove_space", String("HelloWorld")},
		{"isempty", Boolean(false)},
		{"empty", Boolean(false)},
	}
	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			got, ok := s.Property(tt.prop)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("case sensitive", func(t *testing.T) {
		for _, name := range []string{"LENGTH", "Length", "LeNgTh"} {
			_, ok := s.Property(name)
			assert.False(t, ok, name)
		}
	})

	t.Run("unknown property is absent", func(t *testing.T) {
		v, ok := s.Property("nonExistentProperty")
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("chained", func(t *testing.T) {
		got := Walk(String("Hello"), []string{"uppercase", "lowercase"})
		assert.Equal(t, String("hello"), got)
		got = Walk(String("Hello"), []string{"length", "length"})
		assert.Equal(t, Number(1), got)
	})
}

func TestString_Index(t *testing.T) {
	s := String("abc")
	tests := []struct {
		prop string
		want Value
	}{
		{"0", String("a")},
		{"2", String("c")},
		{"-1", String("c")},
		{"-3", String("a")},
		{"3", Null},
		{"-4", Null},
	}
	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			got, ok := s.Property(tt.prop)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString_Slice(t *testing.T) {
	tests := []struct {
		in   string
		expr string
		want Value
	}{
		{"abc", "::-1", String("cba")},
		{"abc", "1:", String("bc")},
		{"abc", ":2", String("ab")},
		{"abcdef", "::2", String("ace")},
		{"abcdef", "1:6:2", String("bdf")},
		{"abcdef", "-2:", String("ef")},
		{"abcdef", ":-2", String("abcd")},
		{"abcdef", "-1::-1", String("fedcba")},
		{"abcdef", "4:1:-1", String("edc")},
		{"abc", "2:2", String("")},
		{"abc", "2:1", String("")},
		{"abc", "0:100", String("abc")},
		{"abc", "::0", Null},
		{"héllo", "1:3", String("él")},
	}
	for _, tt := range tests {
		t.Run(tt.in+"["+tt.expr+"]", func(t *testing.T) {
			got, ok := String(tt.in).Property(tt.expr)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("not a slice", func(t *testing.T) {
		_, ok := String("abc").Slice("1:2:3:4")
		assert.False(t, ok)
		_, ok = String("abc").Property("1:2:3:4")
		assert.False(t, ok)
	})
}

func TestString_SliceMatchesIndex(t *testing.T) {
	inputs := []string{"a", "hello", "stepflow", "日本語テキスト"}
	for _, in := range inputs {
		s := String(in)
		for i := 0; i < len([]rune(in)); i++ {
			sliced, ok := s.Slice(itoa(i) + ":" + itoa(i+1) + ":1")
			require.True(t, ok)
			assert.Equal(t, s.Index(i), sliced, "%q[%d]", in, i)
		}
	}
}

func itoa(i int) string {
	return Number(i).AsString()
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "3", Number(3).AsString())
	assert.Equal(t, "3.14", Number(3.14).AsString())
	assert.Equal(t, "-5", Number(-5).AsString())

	tests := []struct {
		n    Number
		prop string
		want Number
	}{
		{3.14, "int", 3},
		{-3.7, "int", -3},
		{3.7, "round", 4},
		{-5.5, "abs", 5.5},
		{3.14, "length", 1},
		{100, "length", 3},
		{-5.5, "len", 2},
	}
	for _, tt := range tests {
		got, ok := tt.n.Property(tt.prop)
		require.True(t, ok, tt.prop)
		assert.Equal(t, tt.want, got, "%v.%s", tt.n, tt.prop)
	}
	assert.True(t, Number(2).AsBoolean())
	assert.False(t, Number(0).AsBoolean())
}

func TestBoolean(t *testing.T) {
	not, ok := Boolean(true).Property("not")
	require.True(t, ok)
	assert.Equal(t, Boolean(false), not)
	assert.Equal(t, Boolean(true), Walk(Boolean(true), []string{"not", "not"}))

	n, ok := Boolean(true).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 1.0, n)
}

func TestNull_SafeNavigation(t *testing.T) {
	v, ok := Null.Property("anyProperty")
	require.True(t, ok)
	assert.Equal(t, Null, v)
	assert.Equal(t, Null, Walk(Null, []string{"a", "b", "c"}))
	assert.Equal(t, "", Null.AsString())
	_, ok = Null.AsNumber()
	assert.False(t, ok)
}

func TestWalk_MissingCollapsesToNull(t *testing.T) {
	got := Walk(String("abc"), []string{"missing", "length"})
	assert.Equal(t, Null, got)
}

func TestList(t *testing.T) {
	l := NewList(String("a"), Number(2), Boolean(true))

	tests := []struct {
		prop string
		want Value
	}{
		{"count", Number(3)},
		{"first", String("a")},
		{"last", Boolean(true)},
		{"isempty", Boolean(false)},
		{"1", Number(2)},
		{"-1", Boolean(true)},
		{"7", Null},
	}
	for _, tt := range tests {
		got, ok := l.Property(tt.prop)
		require.True(t, ok, tt.prop)
		assert.Equal(t, tt.want, got, tt.prop)
	}

	r, ok := l.Property("random")
	require.True(t, ok)
	assert.Contains(t, l.Items(), r)

	empty := NewList()
	first, _ := empty.Property("first")
	assert.Equal(t, Null, first)
	random, _ := empty.Property("random")
	assert.Equal(t, Null, random)

	assert.Equal(t, `["a",2,true]`, l.AsString())
}

func TestDictionary(t *testing.T) {
	d := NewDictionary(map[string]Value{
		"b":     Number(2),
		"a":     String("x"),
		"count": String("shadowed"),
	})

	keys, ok := d.Property("keys")
	require.True(t, ok)
	assert.Equal(t, NewList(String("a"), String("b"), String("count")), keys)

	values, ok := d.Property("values")
	require.True(t, ok)
	assert.Equal(t, NewList(String("x"), Number(2), String("shadowed")), values)

	v, ok := d.Property("count")
	require.True(t, ok)
	assert.Equal(t, String("shadowed"), v, "keys take precedence over builtin properties")

	size, ok := d.Property("size")
	require.True(t, ok)
	assert.Equal(t, Number(3), size)

	_, ok = d.Property("missing")
	assert.False(t, ok)
}

func TestDomainValues(t *testing.T) {
	date := NewDate(time.Date(2024, time.March, 10, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-10", date.AsString())
	assert.Equal(t, Number(2024), Walk(date, []string{"year"}))
	assert.Equal(t, Number(3), Walk(date, []string{"month"}))
	assert.Equal(t, Number(7), Walk(date, []string{"weekday"}), "sunday is 7")

	clock := Clock{Hour: 9, Minute: 5}
	assert.Equal(t, "09:05", clock.AsString())
	assert.Equal(t, Number(5), Walk(clock, []string{"minute"}))

	region := Region{Left: 0, Top: 0, Right: 100, Bottom: 50}
	assert.Equal(t, Number(100), Walk(region, []string{"w"}))
	assert.Equal(t, Number(25), Walk(region, []string{"center", "y"}))
	assert.Equal(t, Boolean(false), Walk(region, []string{"is_empty"}))

	img := NewImage("/does/not/exist.png")
	assert.Equal(t, String("exist.png"), Walk(img, []string{"name"}))
	assert.Equal(t, Null, Walk(img, []string{"width"}))
}

func TestFromAndToNative(t *testing.T) {
	in := map[string]any{
		"name":  "stepflow",
		"count": 3,
		"tags":  []any{"a", "b"},
		"ok":    true,
		"none":  nil,
	}
	v := From(in)
	require.Equal(t, KindDictionary, v.Kind())
	assert.Equal(t, String("b"), Walk(v, []string{"tags", "last"}))
	assert.Equal(t, Number(3), Walk(v, []string{"count"}))
	assert.Equal(t, Null, Walk(v, []string{"none"}))

	native := ToNative(v).(map[string]any)
	assert.Equal(t, 3.0, native["count"])
	assert.Equal(t, []any{"a", "b"}, native["tags"])
	assert.Nil(t, native["none"])

	same := NewList()
	assert.Same(t, same, From(same), "wrapping a Value returns it unchanged")

	assert.Equal(t, NewList(Number(1), Number(2)), From([]int{1, 2}))
}

func TestEqualCompareContains(t *testing.T) {
	assert.True(t, Equal(Number(3), String("3.0")))
	assert.True(t, Equal(String("a"), String("a")))
	assert.False(t, Equal(String("a"), Null))
	assert.True(t, Equal(Null, Null))
	assert.True(t, Equal(Boolean(true), String("yes")))

	assert.Equal(t, -1, Compare(Number(2), Number(10)))
	assert.Equal(t, 1, Compare(String("b"), String("a")))

	assert.True(t, Contains(NewList(String("x"), Number(1)), String("1")))
	assert.True(t, Contains(String("hello"), String("ell")))
	assert.True(t, Contains(NewDictionary(map[string]Value{"k": Null}), String("k")))
	assert.False(t, Contains(Null, String("x")))
}
