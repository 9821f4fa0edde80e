package chunk_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/chunk"
)

func TestKeyOrdering(t *testing.T) {
	keys := []chunk.Key{
		{1, 2, 3},
		{1, 2},
		{-1, 7},
		{1, 3},
		{0},
		{1, 2, 3, 0},
		{2},
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	want := []chunk.Key{
		{-1, 7},
		{0},
		{1, 2},
		{1, 2, 3},
		{1, 2, 3, 0},
		{1, 3},
		{2},
	}
	require.Equal(t, want, keys)

	// Encoded form must sort the same way byte-wise.
	for i := 1; i < len(keys); i++ {
		a, b := keys[i-1].Encoded(), keys[i].Encoded()
		assert.True(t, bytes.Compare(a, b) < 0, "%v should encode before %v", keys[i-1], keys[i])
	}
}

func TestKeyPrefix(t *testing.T) {
	k := chunk.Key{1, 2, 3, 4}
	assert.True(t, k.HasPrefix(chunk.Key{}))
	assert.True(t, k.HasPrefix(chunk.Key{1}))
	assert.True(t, k.HasPrefix(chunk.Key{1, 2, 3}))
	assert.True(t, k.HasPrefix(chunk.Key{1, 2, 3, 4}))
	assert.False(t, k.HasPrefix(chunk.Key{1, 2, 3, 4, 5}))
	assert.False(t, k.HasPrefix(chunk.Key{2}))

	// prefix match must hold on the encoded form too, since the store
	// does its range deletes byte-wise
	assert.True(t, bytes.HasPrefix(k.Encoded(), chunk.Key{1, 2}.Encoded()))
	assert.False(t, bytes.HasPrefix(k.Encoded(), chunk.Key{1, 3}.Encoded()))
}

func TestKeyEncodeDecode(t *testing.T) {
	for _, k := range []chunk.Key{
		{},
		{0},
		{1, 2, 3},
		{-1, 42},
		{-2147483648, 2147483647},
	} {
		got, err := chunk.DecodeKey(k.Encoded())
		require.NoError(t, err)
		require.Equal(t, k, got)
	}

	_, err := chunk.DecodeKey([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestKeyScratch(t *testing.T) {
	k := chunk.NewScratchKey(9)
	assert.True(t, k.IsScratch())
	assert.False(t, chunk.Key{1, 9}.IsScratch())
	assert.Equal(t, "[-1,9]", k.String())
}
