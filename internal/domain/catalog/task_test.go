package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

func TestTaskAttemptBounds(t *testing.T) {
	t.Parallel()

	require.False(t, catalog.Task{Attempts: 2, MaxAttempts: 3}.LastAttempt())
	require.True(t, catalog.Task{Attempts: 3, MaxAttempts: 3}.LastAttempt())
	require.False(t, catalog.Task{Attempts: 3, MaxAttempts: 3}.Exhausted())
	require.True(t, catalog.Task{Attempts: 4, MaxAttempts: 3}.Exhausted())
	require.False(t, catalog.Task{Attempts: 9}.Exhausted())
}
