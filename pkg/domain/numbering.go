package domain

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Document number prefixes.
const (
	PrefixSale          = "SAL"
	PrefixInvoice       = "INV"
	PrefixPurchaseOrder = "PO"
	PrefixPatient       = "MRN"
	PrefixEncounter     = "ENC"
	PrefixPrescription  = "RX"
)

// NewID returns a time-ordered UUIDv7, falling back to a random v4 when the
// clock source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewDocumentNumber renders <prefix><YY><NNNN> with a random four-digit
// suffix. Numbers are not guaranteed unique; callers check their table and
// retry.
func NewDocumentNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%02d%04d", prefix, now.Year()%100, rand.IntN(10000))
}

// SequenceNumber renders a zero-padded sequential identifier such as MRN-000042.
func SequenceNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// MaxNumberAttempts bounds collision retries for random document numbers.
const MaxNumberAttempts = 10

// UniqueDocumentNumber draws document numbers until taken reports false or
// MaxNumberAttempts is exhausted.
func UniqueDocumentNumber(prefix string, now time.Time, taken func(string) bool) (string, error) {
	for range MaxNumberAttempts {
		candidate := NewDocumentNumber(prefix, now)
		if !taken(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free %s number after %d attempts", ErrAlreadyExists, prefix, MaxNumberAttempts)
}
