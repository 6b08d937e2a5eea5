package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

func TestMergeResultTotal(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 0, catalog.MergeResult{}.Total())
	require.EqualValues(t, 7, catalog.MergeResult{InsertedCount: 4, UpdatedCount: 3}.Total())
}
