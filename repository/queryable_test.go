package repository

import (
	"errors"
	"fmt"
	"testing"

	"wagerbot/service"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{codeLockNotAvailable, true},
		{codeDeadlockDetected, true},
		{codeSerializationFailure, true},
		{codeUniqueViolation, false},
		{"23503", false},
		{codeNumericOutOfRange, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("query: %w", &pgconn.PgError{Code: tt.code, Message: "boom"})
			assert.Equal(t, tt.retryable, service.IsRetryable(translateError(err)))
		})
	}

	overflow := fmt.Errorf("update: %w", &pgconn.PgError{Code: codeNumericOutOfRange, Message: "numeric field overflow"})
	assert.ErrorIs(t, translateError(overflow), service.ErrInvalidAmount)
	assert.False(t, service.IsRetryable(translateError(overflow)))

	assert.NoError(t, translateError(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, translateError(plain))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: externalRefIndex}

	assert.True(t, isUniqueViolation(err, externalRefIndex))
	assert.True(t, isUniqueViolation(err, ""))
	assert.False(t, isUniqueViolation(err, "accounts_telegram_id_key"))
	assert.False(t, isUniqueViolation(errors.New("other"), ""))
	assert.False(t, isUniqueViolation(nil, ""))
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("150.25")
	assert.NoError(t, err)
	assert.Equal(t, "150.25", d.StringFixed(2))

	_, err = parseAmount("NaN")
	assert.Error(t, err)
}
