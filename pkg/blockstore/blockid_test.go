package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlockId_Unique(t *testing.T) {
	seen := make(map[BlockId]bool)
	for i := 0; i < 1000; i++ {
		id := NewBlockId()
		assert.False(t, seen[id], "generated duplicate BlockId")
		seen[id] = true
	}
}

func TestBlockId_StringRoundtrip(t *testing.T) {
	id := NewBlockId()
	s := id.String()
	assert.Len(t, s, IDSize*2)

	parsed, err := ParseBlockId(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseBlockId_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"too short", "abcd"},
		{"too long", "00000000000000000000000000000000000000"},
		{"non-hex", "zz00000000000000000000000000000000000g"[:32]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlockId(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestBlockId_Less(t *testing.T) {
	a := BlockId{0x00}
	b := BlockId{0x01}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestBlockId_IsZero(t *testing.T) {
	var zero BlockId
	assert.True(t, zero.IsZero())
	assert.False(t, NewBlockId().IsZero())
}
