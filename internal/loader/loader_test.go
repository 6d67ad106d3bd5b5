package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFrontmatter_ValidBasic(t *testing.T) {
	content := `/*---
name: monthly_revenue
owner: finance
---*/

SELECT * FROM orders`

	result, err := ExtractFrontmatter(content)
	require.NoError(t, err)

	assert.True(t, result.HasYAML)
	assert.Equal(t, "monthly_revenue", result.Config.Name)
	assert.Equal(t, "finance", result.Config.Owner)
	assert.Equal(t, "SELECT * FROM orders", result.SQL)
}

func TestExtractFrontmatter_AllFields(t *testing.T) {
	content := `/*---
name: user_metrics
description: Daily user activity
owner: data-team
registry: flat
strict: true
tags:
  - users
  - metrics
meta:
  priority: high
---*/
SELECT user_id, count(*) AS n FROM events GROUP BY user_id`

	result, err := ExtractFrontmatter(content)
	require.NoError(t, err)

	cfg := result.Config
	assert.Equal(t, "user_metrics", cfg.Name)
	assert.Equal(t, "Daily user activity", cfg.Description)
	assert.Equal(t, "flat", cfg.Registry)
	require.NotNil(t, cfg.Strict)
	assert.True(t, *cfg.Strict)
	assert.Equal(t, []string{"users", "metrics"}, cfg.Tags)
	assert.Equal(t, "high", cfg.Meta["priority"])
}

func TestExtractFrontmatter_None(t *testing.T) {
	content := "-- plain file\nSELECT 1"

	result, err := ExtractFrontmatter(content)
	require.NoError(t, err)
	assert.False(t, result.HasYAML)
	assert.Equal(t, content, result.SQL)
	assert.NotNil(t, result.Config)
}

func TestExtractFrontmatter_Errors(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := ExtractFrontmatter("/*---\nmaterialized: table\n---*/\nSELECT 1")
		var ue *UnknownFieldError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, "materialized", ue.Field)
		assert.Contains(t, err.Error(), `use "meta" field`)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ExtractFrontmatter("/*---\nname: [unclosed\n---*/\nSELECT 1")
		var pe *FrontmatterParseError
		require.True(t, errors.As(err, &pe))
		assert.Contains(t, pe.Message, "invalid YAML")
	})

	t.Run("invalid registry", func(t *testing.T) {
		_, err := ExtractFrontmatter("/*---\nregistry: nested\n---*/\nSELECT 1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid registry value")
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestScanner_ScanDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "staging", "orders.sql"), "SELECT id FROM raw_orders")
	writeFile(t, filepath.Join(dir, "marts", "revenue.sql"), "/*---\nname: revenue_daily\n---*/\nSELECT 1")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden.sql"), "SELECT 1")
	writeFile(t, filepath.Join(dir, ".cache", "x.sql"), "SELECT 1")

	files, err := NewScanner(dir).ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "revenue_daily", files[0].Name)
	assert.Equal(t, "SELECT 1", files[0].SQL)

	assert.Equal(t, "staging.orders", files[1].Name)
	assert.Equal(t, "SELECT id FROM raw_orders", files[1].SQL)
	assert.Equal(t, ContentHash("SELECT id FROM raw_orders"), files[1].Hash)
	assert.Len(t, files[1].Hash, 16)
}

func TestScanner_LoadFileAttachesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sql")
	writeFile(t, path, "/*---\nowner: x\nschedule: daily\n---*/\nSELECT 1")

	_, err := NewScanner(dir).LoadFile(path)
	var ue *UnknownFieldError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, path, ue.File)
}

func TestScanner_QueryNameWithoutBaseDir(t *testing.T) {
	f, err := NewScanner("").ParseContent("/tmp/some/where/daily.sql", "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "daily", f.Name)
}
