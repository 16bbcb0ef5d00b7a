package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-refcache/entitycache"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(tb testing.TB, path string) []byte {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(tb testing.TB, path string, dest any) {
	tb.Helper()

	data := LoadFixture(tb, path)
	if err := json.Unmarshal(data, dest); err != nil {
		tb.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadEntities loads a JSON array of documents.
func LoadEntities(tb testing.TB, path string) []entitycache.Entity {
	tb.Helper()

	var docs []entitycache.Entity
	LoadFixtureJSON(tb, path, &docs)
	return docs
}

// WriteGolden writes test output to a golden file, creating parent directories.
// Call it only when refreshing golden files.
func WriteGolden(tb testing.TB, path string, data []byte) {
	tb.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual with the golden file at path. A missing
// golden file is created from actual.
func CompareWithGolden(tb testing.TB, path string, actual []byte) {
	tb.Helper()

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			tb.Logf("golden file %s does not exist, creating it", path)
			WriteGolden(tb, path, actual)
			return
		}
		tb.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		tb.Errorf("output mismatch for %s:\nexpected:\n%s\nactual:\n%s", path, expected, actual)
	}
}

// TempFile writes content to a file that is removed when the test ends.
func TempFile(tb testing.TB, pattern string, content []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), pattern)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		tb.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
