package partition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/model"
)

func TestTableAssign(t *testing.T) {
	tbl := NewTable(2)

	require.NoError(t, tbl.Assign(0, "http://a"))
	assert.Error(t, tbl.Assign(2, "http://a"))
	assert.Error(t, tbl.Assign(-1, "http://a"))
	assert.Error(t, tbl.Assign(1, ""))

	ep, ok := tbl.Endpoint(0)
	assert.True(t, ok)
	assert.Equal(t, "http://a", ep)

	_, ok = tbl.Endpoint(1)
	assert.False(t, ok)

	tbl.Unassign(0)
	_, ok = tbl.Endpoint(0)
	assert.False(t, ok)
}

func TestTableRebalance(t *testing.T) {
	tbl := NewTable(5)

	assert.Error(t, tbl.Rebalance(nil))
	require.NoError(t, tbl.Rebalance([]string{"a", "b"}))

	assert.Equal(t, []int{0, 2, 4}, tbl.PartitionsOf("a"))
	assert.Equal(t, []int{1, 3}, tbl.PartitionsOf("b"))
	assert.Empty(t, tbl.PartitionsOf("c"))
}

func TestStaticResolver(t *testing.T) {
	players := NewTable(2)
	require.NoError(t, players.Assign(0, "http://p0"))

	r := NewStaticResolver(map[Service]*Table{ServicePlayers: players})
	ctx := context.Background()

	ep, err := r.Resolve(ctx, ServicePlayers, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://p0", ep)

	_, err = r.Resolve(ctx, ServicePlayers, 1)
	assert.ErrorIs(t, err, model.ErrNotOwner)

	_, err = r.Resolve(ctx, ServiceRooms, 0)
	assert.Error(t, err)

	r.Invalidate(ServicePlayers, 0)
	ep, err = r.Resolve(ctx, ServicePlayers, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://p0", ep)
}
