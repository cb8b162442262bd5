package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alembic/shop-engine/ledger"
)

// =============================================================================
// ERROR CHAIN TESTS
// =============================================================================

func TestStorageError_DriverErrorStaysReachable(t *testing.T) {
	// GIVEN: A storage error wrapping a context timeout
	// WHEN: Matching with errors.Is / errors.As
	// THEN: Both the ErrStorage sentinel and the driver error match

	err := ledger.NewStorageError("append", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var se *ledger.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "append", se.Op)
}

func TestNewStorageError_NilPassesThrough(t *testing.T) {
	assert.NoError(t, ledger.NewStorageError("sum rows", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, ledger.IsRetryable(ledger.ErrConcurrentModification))
	assert.False(t, ledger.IsRetryable(ledger.NewStorageError("append", context.DeadlineExceeded)))
	assert.False(t, ledger.IsRetryable(ledger.ErrDuplicateIdempotencyKey))
}
