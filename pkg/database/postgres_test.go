package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "integrity",
		Password: "s3cret",
		Name:     "unipass",
		SSLMode:  "require",
	})
	require.Equal(t, "host=db.internal port=5433 user=integrity password=s3cret dbname=unipass sslmode=require", dsn)
}
