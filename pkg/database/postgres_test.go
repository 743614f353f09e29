package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-results-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "grader", Password: "pw", Name: "sma_results"})
	assert.Equal(t, "host=db port=5432 user=grader password=pw dbname=sma_results sslmode=disable", dsn)

	dsn = DSN(config.DatabaseConfig{Host: "db", Port: 5432, SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}
