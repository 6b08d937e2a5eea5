package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

func TestParseHeaderCaseInsensitiveWithBOM(t *testing.T) {
	t.Parallel()

	h, err := catalog.ParseHeader([]string{"\uFEFFSKU", " Name ", "Description", "color"})
	require.NoError(t, err)
	require.Equal(t, 4, h.Width())
	require.Equal(t, "SKU", h.Raw[0])

	rec, err := h.Record(2, []string{"AbC-1", "Widget", "A widget", "red"})
	require.NoError(t, err)
	require.Equal(t, "abc-1", rec.Key())
	require.Equal(t, "Widget", rec.Name)
	require.Equal(t, "A widget", rec.Description)
	require.EqualValues(t, 2, rec.Line)
}

func TestParseHeaderMissingSKU(t *testing.T) {
	t.Parallel()

	_, err := catalog.ParseHeader([]string{"name", "description"})
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
}

func TestParseHeaderDuplicateColumn(t *testing.T) {
	t.Parallel()

	_, err := catalog.ParseHeader([]string{"sku", "SKU"})
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
}

func TestHeaderRecordWrongArity(t *testing.T) {
	t.Parallel()

	h, err := catalog.ParseHeader([]string{"sku", "name"})
	require.NoError(t, err)

	_, err = h.Record(3, []string{"abc"})
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
	require.Contains(t, err.Error(), "line 3")
}

func TestHeaderRecordEmptyKey(t *testing.T) {
	t.Parallel()

	h, err := catalog.ParseHeader([]string{"sku", "name"})
	require.NoError(t, err)

	_, err = h.Record(2, []string{"   ", "nameless"})
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
}

func TestHeaderRecordOptionalColumns(t *testing.T) {
	t.Parallel()

	h, err := catalog.ParseHeader([]string{"sku"})
	require.NoError(t, err)

	rec, err := h.Record(2, []string{"X1"})
	require.NoError(t, err)
	require.Empty(t, rec.Name)
	require.Empty(t, rec.Description)
}
