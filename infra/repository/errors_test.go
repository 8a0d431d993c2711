package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMapGormErrorToDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{name: "nil error returns nil", input: nil, expected: nil},
		{name: "duplicate key", input: gorm.ErrDuplicatedKey, expected: domain.ErrAlreadyExists},
		{name: "record not found", input: gorm.ErrRecordNotFound, expected: domain.ErrNotFound},
		{
			name:     "wrapped record not found",
			input:    errors.Join(errors.New("outer error"), gorm.ErrRecordNotFound),
			expected: domain.ErrNotFound,
		},
		{
			name:     "pg unique violation",
			input:    fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}),
			expected: domain.ErrAlreadyExists,
		},
		{
			name:     "pg lock timeout",
			input:    &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"},
			expected: domain.ErrConcurrencyConflict,
		},
		{name: "pg serialization failure", input: &pgconn.PgError{Code: "40001"}, expected: domain.ErrConcurrencyConflict},
		{name: "pg deadlock", input: &pgconn.PgError{Code: "40P01"}, expected: domain.ErrConcurrencyConflict},
		{name: "sqlite busy", input: sqlite3.Error{Code: sqlite3.ErrBusy}, expected: domain.ErrConcurrencyConflict},
		{name: "sqlite locked", input: sqlite3.Error{Code: sqlite3.ErrLocked}, expected: domain.ErrConcurrencyConflict},
		{
			name:     "sqlite unique",
			input:    sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			expected: domain.ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := MapGormErrorToDomain(tt.input)
			if tt.expected == nil {
				assert.NoError(t, result)
				return
			}
			assert.ErrorIs(t, result, tt.expected)
		})
	}
}

func TestMapGormErrorToDomainKeepsUnknown(t *testing.T) {
	t.Parallel()
	original := errors.New("some other error")
	result := MapGormErrorToDomain(original)
	require.Error(t, result)
	assert.Same(t, original, result)
	assert.Equal(t, domain.KindInternal, domain.KindOf(result))
}

func TestWrapError(t *testing.T) {
	t.Parallel()
	err := WrapError(func() error { return gorm.ErrRecordNotFound })
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, WrapError(func() error { return nil }))
}
