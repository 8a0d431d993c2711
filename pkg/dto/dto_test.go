package dto

import (
	"strings"
	"testing"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	id := uuid.New()

	assert.NoError(t, Validate(DepositCommand{AccountID: id}))

	err := Validate(DepositCommand{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	var ve *domain.ValidationError
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "account_id", ve.Field)
	}

	err = Validate(TransferCommand{FromAccountID: id})
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "to_account_id", ve.Field)
	}

	err = Validate(ReverseCommand{TransactionID: id})
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "reason", ve.Field)
	}
}

func TestValidateUsesJSONNames(t *testing.T) {
	var ve *domain.ValidationError

	err := Validate(EntryQuery{AccountID: uuid.New(), Limit: 501})
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "limit", ve.Field)
	}

	err = Validate(CreateReconciliation{})
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "name", ve.Field)
		assert.Equal(t, "is required", ve.Message)
	}

	err = Validate(DepositCommand{AccountID: uuid.New(), IdempotencyKey: strings.Repeat("k", 256)})
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "idempotency_key", ve.Field)
	}
}
