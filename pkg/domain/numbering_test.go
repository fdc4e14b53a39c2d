package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentNumberFormat(t *testing.T) {
	now := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^SAL25\d{4}$`)
	for range 50 {
		assert.Regexp(t, pattern, NewDocumentNumber(PrefixSale, now))
	}
}

func TestUniqueDocumentNumberRetries(t *testing.T) {
	now := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	calls := 0
	number, err := UniqueDocumentNumber(PrefixInvoice, now, func(string) bool {
		calls++
		return calls < 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Regexp(t, `^INV25\d{4}$`, number)

	_, err = UniqueDocumentNumber(PrefixInvoice, now, func(string) bool { return true })
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSequenceNumberAndIDs(t *testing.T) {
	assert.Equal(t, "MRN-000042", SequenceNumber(PrefixPatient, 42))
	id, err := uuid.Parse(NewID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
