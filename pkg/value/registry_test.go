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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UnknownFallsBackToAny(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, TypeAny, r.Type("stepflow.type.unknown").ID)
	assert.Equal(t, TypeString, r.Type(TypeString).ID)
}

func TestRegistry_PropertyType(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		typeID   string
		property string
		want     string
	}{
		{TypeString, "length", TypeNumber},
		{TypeString, "uppercase", TypeString},
		{TypeString, "isempty", TypeBoolean},
		{TypeList, "count", TypeNumber},
		{TypeDictionary, "keys", TypeList},
		{TypeImage, "width", TypeNumber},
		{TypeImage, "path", TypeString},
		{TypeCoordinateRegion, "center", TypeCoordinate},
		{TypeCoordinateRegion, "w", TypeNumber},
		{TypeDate, "weekday", TypeNumber},
	}
	for _, tt := range tests {
		t.Run(tt.typeID+"."+tt.property, func(t *testing.T) {
			got := r.PropertyType(tt.typeID, tt.property)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	assert.Nil(t, r.PropertyType(TypeList, "first"), "item type of a list is unknown")
	assert.Nil(t, r.PropertyType(TypeString, "bogus"))
}

func TestRegistry_Accepted(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.IsTypeOrAnyPropertyAccepted(TypeString, nil))
	assert.True(t, r.IsTypeOrAnyPropertyAccepted(TypeString, []string{TypeNumber}))
	assert.True(t, r.IsTypeOrAnyPropertyAccepted(TypeBoolean, []string{TypeBoolean}))
	assert.False(t, r.IsTypeOrAnyPropertyAccepted(TypeBoolean, []string{TypeImage}))

	props := r.AcceptedProperties(TypeImage, []string{TypeString})
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	assert.ElementsMatch(t, []string{"path", "uri", "name"}, names)
}

func TestRegistry_RegisterAndReset(t *testing.T) {
	r := NewRegistry()
	r.Register(&Type{ID: "custom.type.widget", Name: "Widget", Parent: TypeAny})
	assert.Equal(t, "Widget", r.Type("custom.type.widget").Name)

	r.Reset()
	assert.Equal(t, TypeAny, r.Type("custom.type.widget").ID)

	types := r.Types()
	require.NotEmpty(t, types)
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1].ID, types[i].ID)
	}
}
