package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

func TestClientTempIdGenerator(t *testing.T) {
	gen := NewClientTempIdGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, constant.ClientTempIdPrefix))
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestSonyflakeGenerator(t *testing.T) {
	gen, err := NewSonyflakeGenerator(7)
	require.NoError(t, err)

	a, err := gen.NextID()
	require.NoError(t, err)
	b, err := gen.NextID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNextOperationId(t *testing.T) {
	a := NextOperationId()
	b := NextOperationId()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
