package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "sekolahku",
		Password: "secret",
		Name:     "sekolahku",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Equal(t, "host=db.internal port=5433 user=sekolahku dbname=sekolahku password=secret sslmode=disable", dsn)
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{User: "sekolahku"})
	require.Error(t, err)
}

func TestBuildPostgresDSNPrefersExplicitDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "postgres://u:p@h/db"})
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@h/db", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "root",
		Password: "secret",
		Name:     "sekolahku",
	})
	require.NoError(t, err)
	require.Equal(t, "root:secret@tcp(127.0.0.1:3306)/sekolahku?charset=utf8mb4&loc=Local&parseTime=True", dsn)
}

func TestBuildMySQLDSNOptionsOverride(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:    "root",
		Name:    "sekolahku",
		Options: map[string]string{"loc": "UTC"},
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "loc=UTC")
}
