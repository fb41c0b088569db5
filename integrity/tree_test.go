package integrity

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/providenetwork/merkletree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

func TestHashFactoryStrategies(t *testing.T) {
	assert.NotNil(t, HashFactory(nil))
	assert.NotNil(t, HashFactory(common.StringOrNil(HashStrategySHA256)))
	assert.NotNil(t, HashFactory(common.StringOrNil("SHA256")))
	assert.NotNil(t, HashFactory(common.StringOrNil(HashStrategyMiMC)))
	assert.Nil(t, HashFactory(common.StringOrNil("md5")))
}

func TestMoveContentHashDeterministic(t *testing.T) {
	content := &moveContent{
		hash:  sha256.New(),
		value: []byte("room-1|1|0xalice|{\"roll\":[3,5]}"),
	}

	first, err := content.CalculateHash()
	require.NoError(t, err)
	second, err := content.CalculateHash()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMoveContentEquality(t *testing.T) {
	canonical := []byte("room-1|1|0xalice|{\"roll\":[3,5]}")

	a := &moveContent{hash: sha256.New(), value: canonical}
	b := &moveContent{hash: sha256.New(), value: canonical}
	c := &moveContent{hash: sha256.New(), value: []byte("room-1|2|0xbob|{\"roll\":[2,2]}")}

	equal, err := a.Equals(b)
	require.NoError(t, err)
	assert.True(t, equal)

	equal, err = a.Equals(c)
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestMoveContentJSONRoundTrip(t *testing.T) {
	content := &moveContent{
		hash:  sha256.New(),
		value: []byte("room-1|1|0xalice|{\"roll\":[3,5]}"),
	}

	raw, err := json.Marshal(content)
	require.NoError(t, err)

	decoded := &moveContent{hash: sha256.New()}
	err = json.Unmarshal(raw, decoded)
	require.NoError(t, err)
	assert.Equal(t, content.value, decoded.value)
}

func testTree(t *testing.T, canonicalMoves ...string) *Tree {
	instance := &Tree{
		hash:   sha256.New,
		roomID: "room-1",
		values: make([]merkletree.Content, 0),
	}
	for _, move := range canonicalMoves {
		instance.values = append(instance.values, &moveContent{
			hash:  sha256.New(),
			value: []byte(move),
		})
	}
	if len(instance.values) > 0 {
		tree, err := merkletree.NewTreeWithHashStrategy(instance.values, sha256.New)
		require.NoError(t, err)
		instance.tree = tree
	}
	return instance
}

func TestTreeRootNilForEmptyLog(t *testing.T) {
	tree := testTree(t)
	assert.Nil(t, tree.Root())
	assert.Equal(t, 0, tree.Length())

	consistent, err := tree.Verify()
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestTreeRootDeterministicOverMoveLog(t *testing.T) {
	moves := []string{
		"room-1|1|0xalice|{\"roll\":[3,5]}",
		"room-1|2|0xbob|{\"roll\":[2,2]}",
	}

	first := testTree(t, moves...)
	second := testTree(t, moves...)

	require.NotNil(t, first.Root())
	assert.Equal(t, *first.Root(), *second.Root())
	assert.Equal(t, 2, first.Length())

	consistent, err := first.Verify()
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestTreeRootDivergesOnDifferentHistory(t *testing.T) {
	base := testTree(t, "room-1|1|0xalice|{\"roll\":[3,5]}")
	diverged := testTree(t, "room-1|1|0xalice|{\"roll\":[6,1]}")

	require.NotNil(t, base.Root())
	require.NotNil(t, diverged.Root())
	assert.NotEqual(t, *base.Root(), *diverged.Root())
}
