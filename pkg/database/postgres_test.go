package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/seat-enrollment-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "enroll",
		Password: "secret",
		Name:     "seats",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5433 user=enroll password=secret dbname=seats sslmode=disable", dsn)
}
