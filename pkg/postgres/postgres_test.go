package postgres

import (
	"testing"

	"ks-ai/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "db", Port: "5433", User: "ks", Password: "secret", DBName: "ks_ai", SSLMode: "disable",
	}

	dsn := DSN(cfg)
	assert.Equal(t, "host=db port=5433 user=ks password=secret dbname=ks_ai sslmode=disable", dsn)

	parsed, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db", parsed.ConnConfig.Host)
	assert.Equal(t, uint16(5433), parsed.ConnConfig.Port)
	assert.Equal(t, "ks_ai", parsed.ConnConfig.Database)
}
