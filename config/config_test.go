package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmylev/dataclient-go/backend"
)

func TestLoad_Defaults(t *testing.T) {
	snap, err := Load("")
	require.NoError(t, err)
	require.Equal(t, int64(20000), snap.CacheSizeMB)
	require.Equal(t, 90, snap.CacheExpireAfterDays)
	require.True(t, snap.CacheDecompress)
}

func TestLoad_FileAndOrdering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{
		"additional-stores": [{"a": "ffs:s3://bucket-a"}, {"b": "s3db:s3://bucket-b"}],
		"prioritize-additional-stores": true,
		"DATA_CACHE_SIZE_MB": 512
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	snap, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(512), snap.CacheSizeMB)
	require.True(t, snap.PrioritizeAdditionalStores)
	require.Len(t, snap.AdditionalStores, 2)
	require.Equal(t, "a", snap.AdditionalStores[0].ID)
	require.Equal(t, "b", snap.AdditionalStores[1].ID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"DATA_CACHE_SIZE_MB": 100}`), 0o644))

	t.Setenv("DATA_CACHE_SIZE_MB", "777")
	snap, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(777), snap.CacheSizeMB)
}

func TestLoad_DisableCentralizedWithoutAdditionalIsConfigError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"disable-centralized": true}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSnapshot_NewRegistryBuildsOrderedStores(t *testing.T) {
	snap := Snapshot{
		AdditionalStores: []backend.IDURI{
			{ID: "a", URI: "ffs:s3://bucket-a"},
		},
	}
	reg, err := snap.NewRegistry()
	require.NoError(t, err)
	require.Len(t, reg.Ordered(), 1)
	require.Equal(t, "a", reg.Ordered()[0].ID)
}
