package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	type record struct {
		ID   string  `json:"id"`
		Slot uint32  `json:"slot"`
		Text string  `json:"text,omitempty"`
		Num  float64 `json:"num"`
	}

	in := record{ID: "doc-1", Slot: 7, Text: "hello", Num: 1.5}

	data, err := Default.Marshal(in)
	require.NoError(t, err)

	var out record
	require.NoError(t, Default.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
