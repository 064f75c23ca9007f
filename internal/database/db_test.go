// internal/database/db_test.go
package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetenvFallsBackToDefault(t *testing.T) {
	t.Setenv("LOTERIA_DB_TEST_KEY", "")
	assert.Equal(t, "fallback", getenv("LOTERIA_DB_TEST_KEY", "fallback"))

	t.Setenv("LOTERIA_DB_TEST_KEY", "set")
	assert.Equal(t, "set", getenv("LOTERIA_DB_TEST_KEY", "fallback"))
}
