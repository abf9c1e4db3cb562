package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: UniqueViolation, ConstraintName: "uq_emails_external_message_id"}
	wrapped := fmt.Errorf("failed to insert: %w", pgErr)

	assert.True(t, IsUniqueViolation(wrapped))
	assert.True(t, IsUniqueViolation(wrapped, "uq_emails_external_message_id"))
	assert.False(t, IsUniqueViolation(wrapped, "other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("duplicate key")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestTruncateSQL(t *testing.T) {
	assert.Equal(t, "unknown", truncateSQL(""))
	assert.Equal(t, "SELECT 1", truncateSQL("SELECT 1"))

	long := strings.Repeat("x", 250)
	got := truncateSQL(long)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}
