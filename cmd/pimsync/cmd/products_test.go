package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badno/pimsync/pkg/models"
)

func TestParseAssignments(t *testing.T) {
	rec, err := parseAssignments([]string{"title=Oak desk", " Material =Oak=solid", "tags="})
	require.NoError(t, err)
	assert.Equal(t, models.Record{"title": "Oak desk", "Material": "Oak=solid", "tags": ""}, rec)

	_, err = parseAssignments([]string{"title"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=value"})
	assert.Error(t, err)
}

func TestParseIndices(t *testing.T) {
	indices, err := parseIndices([]string{"3", "0", "12"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 12}, indices)

	_, err = parseIndices([]string{"1", "two"})
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"products", "export"},
		{"fields", "assign-groups"},
		{"sync", "push"},
		{"sync", "stock"},
		{"db", "backfill"},
		{"config", "set"},
	} {
		found, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
