package names

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "names", "birdnames.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestResolver_Lookup(t *testing.T) {
	t.Parallel()
	r := newTestResolver(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, []BirdName{
		{ScientificName: "Cardinalis cardinalis", CommonName: "Northern Cardinal"},
		{ScientificName: "Cyanocitta cristata", CommonName: "Blue Jay"},
	}))

	name, ok, err := r.CommonName(ctx, "Cardinalis cardinalis")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Northern Cardinal", name)

	assert.Equal(t, "Blue Jay", r.Display(ctx, "Cyanocitta cristata"))
	assert.Equal(t, NotFound, r.Display(ctx, "Corvus corax"))
	assert.Equal(t, "Corvus corax", r.Label(ctx, "Corvus corax"))
	assert.Equal(t, "Blue Jay", r.Label(ctx, "Cyanocitta cristata"))
}

func TestResolver_UpsertInvalidatesCache(t *testing.T) {
	t.Parallel()
	r := newTestResolver(t)
	ctx := context.Background()

	_, ok, err := r.CommonName(ctx, "Turdus migratorius")
	require.NoError(t, err)
	assert.False(t, ok, "miss is cached")

	require.NoError(t, r.Upsert(ctx, []BirdName{{ScientificName: "Turdus migratorius", CommonName: "Robin"}}))
	name, ok, err := r.CommonName(ctx, "Turdus migratorius")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Robin", name)

	require.NoError(t, r.Upsert(ctx, []BirdName{{ScientificName: "Turdus migratorius", CommonName: "American Robin"}}))
	assert.Equal(t, "American Robin", r.Label(ctx, "Turdus migratorius"))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestParseCSV(t *testing.T) {
	t.Parallel()
	in := strings.Join([]string{
		"scientific_name,common_name",
		"# comment",
		"Poecile atricapillus, Black-capped Chickadee",
		`"Sitta carolinensis","White-breasted Nuthatch"`,
		",missing",
		"Poecile atricapillus,Chickadee",
	}, "\n")

	rows, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, BirdName{ScientificName: "Poecile atricapillus", CommonName: "Chickadee"}, rows[0])
	assert.Equal(t, "White-breasted Nuthatch", rows[1].CommonName)
}

func TestParseCSV_NormalizesAccents(t *testing.T) {
	t.Parallel()
	rows, err := ParseCSV(strings.NewReader("Parus major,Me\u0301sange charbonnie\u0300re\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mésange charbonnière", rows[0].CommonName)
}

func TestParseCSV_ShortRow(t *testing.T) {
	t.Parallel()
	_, err := ParseCSV(strings.NewReader("Poecile atricapillus\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestImport(t *testing.T) {
	t.Parallel()
	r := newTestResolver(t)
	ctx := context.Background()

	n, err := r.Import(ctx, strings.NewReader("Baeolophus bicolor,Tufted Titmouse\nSpinus tristis,American Goldfinch\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "American Goldfinch", r.Display(ctx, "Spinus tristis"))
}
