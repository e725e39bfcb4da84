package paginate_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/collection-server/paginate"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestBuildFirstPage(t *testing.T) {
	v, err := paginate.Build(seq(25), paginate.Params{Page: 1, PerPage: 10}, "/api/items")
	require.NoError(t, err)

	assert.Equal(t, seq(10), v.Data)
	assert.Equal(t, "/api/items?page=1&perPage=10", v.Links.First)
	assert.Equal(t, "/api/items?page=3&perPage=10", v.Links.Last)
	assert.Nil(t, v.Links.Prev)
	require.NotNil(t, v.Links.Next)
	assert.Equal(t, "/api/items?page=2&perPage=10", *v.Links.Next)
	assert.Equal(t, paginate.Meta{
		CurrentPage: 1, From: 1, To: 10, PerPage: 10, Total: 25, LastPage: 3,
	}, v.Meta)
}

func TestBuildLastPage(t *testing.T) {
	v, err := paginate.Build(seq(25), paginate.Params{Page: 3, PerPage: 10}, "/api/items")
	require.NoError(t, err)

	assert.Equal(t, []int{21, 22, 23, 24, 25}, v.Data)
	assert.Nil(t, v.Links.Next)
	require.NotNil(t, v.Links.Prev)
	assert.Equal(t, "/api/items?page=2&perPage=10", *v.Links.Prev)
	assert.Equal(t, 21, v.Meta.From)
	assert.Equal(t, 25, v.Meta.To)
}

func TestBuildPastTheEnd(t *testing.T) {
	v, err := paginate.Build(seq(5), paginate.Params{Page: 4, PerPage: 2}, "/api/x")
	require.NoError(t, err)

	assert.Empty(t, v.Data)
	assert.NotNil(t, v.Data)
	assert.Equal(t, 7, v.Meta.From)
	assert.Equal(t, 6, v.Meta.To)
	assert.Equal(t, 3, v.Meta.LastPage)
	assert.Nil(t, v.Links.Next)
	require.NotNil(t, v.Links.Prev)
	assert.Equal(t, "/api/x?page=3&perPage=2", *v.Links.Prev)
}

func TestBuildEmptyCollection(t *testing.T) {
	v, err := paginate.Build([]string{}, paginate.Params{Page: 1, PerPage: 10}, "/api/none")
	require.NoError(t, err)

	assert.Equal(t, "/api/none?page=1&perPage=10", v.Links.Last)
	assert.Equal(t, 1, v.Meta.LastPage)
	assert.Equal(t, 0, v.Meta.Total)
	assert.Equal(t, 1, v.Meta.From)
	assert.Equal(t, 0, v.Meta.To)
	assert.Nil(t, v.Links.Prev)
	assert.Nil(t, v.Links.Next)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"data": [],
		"links": {
			"first": "/api/none?page=1&perPage=10",
			"last": "/api/none?page=1&perPage=10",
			"prev": null,
			"next": null
		},
		"meta": {"current_page": 1, "from": 1, "to": 0, "per_page": 10, "total": 0, "last_page": 1}
	}`, string(raw))
}

func TestBuildExactMultiple(t *testing.T) {
	v, err := paginate.Build(seq(20), paginate.Params{Page: 2, PerPage: 10}, "/api/items")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Meta.LastPage)
	assert.Nil(t, v.Links.Next)
	assert.Len(t, v.Data, 10)
}

func TestBuildRejectsBadParams(t *testing.T) {
	for _, p := range []paginate.Params{
		{Page: 0, PerPage: 10},
		{Page: -1, PerPage: 10},
		{Page: 1, PerPage: 0},
		{Page: 1, PerPage: -5},
		{Page: math.MaxInt, PerPage: 10},
	} {
		_, err := paginate.Build(seq(3), p, "/api/items")
		assert.ErrorIs(t, err, paginate.ErrInvalidParams, "%+v", p)
	}
}

func TestBuildHugePageSize(t *testing.T) {
	v, err := paginate.Build(seq(3), paginate.Params{Page: 1, PerPage: math.MaxInt}, "/api/items")
	require.NoError(t, err)
	assert.Equal(t, seq(3), v.Data)
	assert.Equal(t, 1, v.Meta.LastPage)
}
