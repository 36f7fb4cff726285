package config

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearDSNEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		envDSNHost, envDSNPort, envDSNUser, envDSNPassword, envDSNDB,
		envDSNParams, envDSNSSLMode, envDSNEncrypt, envDSNSQLite,
	} {
		t.Setenv(k, "")
	}
}

func TestComponentDSN_NoneSet(t *testing.T) {
	clearDSNEnv(t)
	dsn, ok, err := ComponentDSN("postgres")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, dsn)
}

func TestComponentDSN_Postgres(t *testing.T) {
	clearDSNEnv(t)
	t.Setenv(envDSNHost, "db")
	t.Setenv(envDSNUser, "lab")
	t.Setenv(envDSNPassword, "p w")
	t.Setenv(envDSNParams, "application_name=ingest")

	dsn, ok, err := ComponentDSN("postgresql")
	require.NoError(t, err)
	require.True(t, ok)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/water", u.Path)
	pass, _ := u.User.Password()
	assert.Equal(t, "p w", pass)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "ingest", u.Query().Get("application_name"))
}

func TestComponentDSN_MSSQL(t *testing.T) {
	clearDSNEnv(t)
	t.Setenv(envDSNDB, "quality")
	t.Setenv(envDSNEncrypt, "true")

	dsn, ok, err := ComponentDSN("sqlserver")
	require.NoError(t, err)
	require.True(t, ok)
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "mssql:1433", u.Host)
	assert.Equal(t, "quality", u.Query().Get("database"))
	assert.Equal(t, "true", u.Query().Get("encrypt"))
}

func TestComponentDSN_SQLite(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		params string
		want   string
	}{
		{"path", "data/water.db", "", "file:data/water.db"},
		{"path with params", "w.db", "_pragma=busy_timeout(5000)", "file:w.db?_pragma=busy_timeout(5000)"},
		{"full dsn", "file:w.db?mode=rwc", "cache=shared", "file:w.db?mode=rwc&cache=shared"},
		{"default", "", "cache=shared", "file:water.db?cache=shared"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearDSNEnv(t)
			t.Setenv(envDSNSQLite, tc.path)
			t.Setenv(envDSNParams, tc.params)
			dsn, ok, err := ComponentDSN("sqlite")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.want, dsn)
		})
	}
}

func TestComponentDSN_UnknownKind(t *testing.T) {
	clearDSNEnv(t)
	t.Setenv(envDSNHost, "db")
	_, _, err := ComponentDSN("oracle")
	assert.Error(t, err)
}

func TestLoad_DatabaseURLWinsOverComponents(t *testing.T) {
	t.Chdir(t.TempDir())
	clearDSNEnv(t)
	t.Setenv("STORAGE_KIND", "postgres")
	t.Setenv(envDSNHost, "db")

	t.Setenv("DATABASE_URL", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Contains(t, cfg.Storage.DSN, "postgresql://user:password@db:5432/water")

	t.Setenv("DATABASE_URL", "postgres://explicit/water")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://explicit/water", cfg.Storage.DSN)
}
