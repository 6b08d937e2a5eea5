package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

func TestCompletedUpdateClearsAttemptError(t *testing.T) {
	t.Parallel()

	snap := catalog.ErrorUpdate("stage records: connection reset by peer").Apply(catalog.ProgressSnapshot{
		Status:    catalog.StatusStaging,
		Processed: 2,
		Total:     2,
	})
	require.NotEmpty(t, snap.Error)

	snap = catalog.CompletedUpdate(3, 3).Apply(snap)
	require.Equal(t, catalog.ProgressSnapshot{Status: catalog.StatusCompleted, Processed: 3, Total: 3}, snap)
}
