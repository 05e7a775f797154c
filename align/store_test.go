package align

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWith(names ...string) *Store {
	s := NewStore()
	for _, name := range names {
		s.Add(&Cloud{Name: name, Points: []r3.Vector{{X: 1, Y: 2, Z: 3}}})
	}
	return s
}

func TestStoreSelect(t *testing.T) {
	s := storeWith("a", "b", "c")

	tests := []struct {
		selector string
		want     []string
	}{
		{selector: "all", want: []string{"a", "b", "c"}},
		{selector: "first", want: []string{"a"}},
		{selector: "last", want: []string{"c"}},
		{selector: "#1", want: []string{"b"}},
		{selector: "#7", want: nil},
		{selector: "b", want: []string{"b"}},
		{selector: "missing", want: nil},
		{selector: "none", want: nil},
		{selector: "", want: nil},
		{selector: " last ", want: []string{"c"}},
		{selector: "LAST", want: []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			got, err := s.Select(tt.selector)
			require.NoError(t, err)
			var names []string
			for _, c := range got {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestStoreSelectBadIndex(t *testing.T) {
	s := storeWith("a")
	_, err := s.Select("#x")
	assert.Error(t, err)
}

func TestStoreSelectEmptyStore(t *testing.T) {
	s := NewStore()
	for _, sel := range []string{"all", "first", "last"} {
		got, err := s.Select(sel)
		require.NoError(t, err)
		assert.Empty(t, got, "selector %q", sel)
	}
}

func TestStoreAddReplacesByName(t *testing.T) {
	s := storeWith("a", "b")
	replacement := &Cloud{Name: "a", Points: []r3.Vector{{X: 9, Y: 9, Z: 9}}}
	s.Add(replacement)

	assert.Equal(t, 2, s.Len())
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, replacement, got)

	// Replacement keeps the original position.
	first, err := s.Select("first")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].Name)
}

func TestStoreCloudsOrder(t *testing.T) {
	s := storeWith("x", "y", "z")
	clouds := s.Clouds()
	require.Len(t, clouds, 3)
	assert.Equal(t, "x", clouds[0].Name)
	assert.Equal(t, "z", clouds[2].Name)
}
