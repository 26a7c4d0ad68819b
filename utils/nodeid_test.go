package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeIDDotted(t *testing.T) {
	id, err := ParseNodeID("3.1.12.7")
	require.NoError(t, err)
	assert.Equal(t, 3, id.AreaID())
	assert.Equal(t, 1, id.SetID())
	assert.Equal(t, 12, id.FuncID())
	assert.Equal(t, 7, id.InstID())
	assert.Equal(t, "3.1.12.7", id.String())
}

func TestParseNodeIDPlain(t *testing.T) {
	id, err := ParseNodeID("1001")
	require.NoError(t, err)
	assert.Equal(t, NodeID(1001), id)
	assert.Equal(t, "1001", id.String())
}

func TestParseNodeIDInvalid(t *testing.T) {
	cases := []string{"", "a.b.c.d", "0.1.1.1", "32.0.1.1", "1.16.1.1", "1.0.256.1", "1.0.1.0", "1.0.1.32768", "-5"}
	for _, c := range cases {
		_, err := ParseNodeID(c)
		assert.Error(t, err, c)
	}
}
