package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0)
	require.Equal(t, Pagination{Page: 1, PerPage: 100}, p)
	require.Equal(t, 0, p.Offset())

	p = NewPagination(3, 25)
	require.Equal(t, 50, p.Offset())

	require.Equal(t, MaxPerPage, NewPagination(1, 10000).PerPage)
}
