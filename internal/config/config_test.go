package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/config"
)

func TestLoadAppliesDefaultsAndRequiresSchemaPath(t *testing.T) {
	t.Setenv("SCHEMA_PATH", "")
	t.Setenv("SESSION_COOKIE_SECRET", "")
	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("SCHEMA_PATH", "/etc/restd/schema.json")
	t.Setenv("SESSION_COOKIE_SECRET", "s3cr3t")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "/etc/restd/schema.json", cfg.SchemaPath)
	require.Equal(t, ":8443", cfg.ListenAddress)
	require.False(t, cfg.ForceHTTPS)
	require.True(t, cfg.AuthEnabled)
}
