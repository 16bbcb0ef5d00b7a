package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFixture(t *testing.T) {
	path := TempFile(t, "test.txt", []byte("test fixture content"))

	assert.Equal(t, "test fixture content", string(LoadFixture(t, path)))
}

func TestLoadFixtureJSON(t *testing.T) {
	path := TempFile(t, "test.json", []byte(`{"name":"test","value":42}`))

	var result map[string]any
	LoadFixtureJSON(t, path, &result)
	assert.Equal(t, "test", result["name"])
	assert.Equal(t, float64(42), result["value"])
}

func TestLoadEntities(t *testing.T) {
	docs := LoadEntities(t, FixturePath("courses.json"))
	require.Len(t, docs, 8)
	assert.Equal(t, "c1", docs[0].ID())
	assert.Equal(t, docs, Courses())
}

func TestCompareWithGolden_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "out.json")

	CompareWithGolden(t, path, []byte("{}\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	// A second comparison against the created file passes.
	CompareWithGolden(t, path, []byte("{}\n"))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("testdata", "courses.json"), FixturePath("courses.json"))
	assert.Equal(t, filepath.Join("testdata", "golden", "page.json"), GoldenPath("page.json"))
}
