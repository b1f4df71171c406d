package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/enrollment-engine/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "svc",
		Password: "secret",
		Name:     "school_enrollment",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5433 user=svc password=secret dbname=school_enrollment sslmode=disable", dsn)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFS.ReadDir(migrationDir)
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
