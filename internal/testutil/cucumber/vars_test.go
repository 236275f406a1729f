package cucumber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandResolvesVariablesAndResponse(t *testing.T) {
	s := &Scenario{Suite: &Suite{}, Vars: map[string]any{
		"cursor": "p1_b",
		"page":   map[string]any{"ids": []any{"p1", "p2"}},
	}}
	s.last = &exchange{status: 200, body: []byte(`{"nextCursor":null,"mergedCount":2,"items":[{"id":"p1_a"}]}`)}

	out, err := s.Expand(`${cursor} ${page.ids[1]} ${response.mergedCount} ${response.items[0].id}`)
	require.NoError(t, err)
	assert.Equal(t, "p1_b p2 2 p1_a", out)

	_, err = s.Expand("${missing}")
	assert.ErrorContains(t, err, "not defined")
}

func TestSubsetComparison(t *testing.T) {
	s := &Scenario{Suite: &Suite{}, Vars: map[string]any{"wm": float64(120)}}
	got := map[string]any{"mergedCount": float64(2), "newWatermark": float64(120), "extra": true}

	require.NoError(t, s.expectSubset(got, `{"newWatermark": ${wm}}`))
	assert.ErrorContains(t, s.expectSubset(got, `{"mergedCount": 3}`), "$.mergedCount")
	assert.ErrorContains(t, s.expectSubset(got, `{"absent": 1}`), `no member "absent"`)
	assert.Error(t, s.expectEqual(got, `{"mergedCount": 2}`))
}

func TestFormat(t *testing.T) {
	for in, want := range map[any]string{
		float64(500): "500",
		1.5:          "1.5",
		"x":          "x",
		true:         "true",
		nil:          "",
	} {
		got, err := Format(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
