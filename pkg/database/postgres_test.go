package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/clonebot/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "bot", Password: "pw", Name: "clonebot", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=bot password=pw dbname=clonebot sslmode=disable", dsn)
}
