package pgdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/pgdb"
)

func TestNewPoolInvalidDSN(t *testing.T) {
	ctx := context.Background()

	_, err := pgdb.NewPool(ctx, pgdb.Config{DSN: "not-a-valid-dsn://\x00"})

	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	err := pgdb.NewPgError(pgdb.UniqueViolationCode, "duplicate key value violates unique constraint")

	assert.True(t, pgdb.IsUniqueViolation(err))
	assert.False(t, pgdb.IsSerializationFailure(err))
}

func TestIsSerializationFailure(t *testing.T) {
	err := pgdb.NewPgError(pgdb.SerializationFailureCode, "could not serialize access due to concurrent update")

	assert.True(t, pgdb.IsSerializationFailure(err))
	assert.False(t, pgdb.IsUniqueViolation(err))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, pgdb.IsNoRows(pgdb.ErrNoRows))
	assert.False(t, pgdb.IsNoRows(nil))
}

func TestErrorHelpersIgnoreUnrelatedErrors(t *testing.T) {
	plain := assert.AnError

	assert.False(t, pgdb.IsUniqueViolation(plain))
	assert.False(t, pgdb.IsSerializationFailure(plain))
	assert.False(t, pgdb.IsForeignKeyViolation(plain))
}
