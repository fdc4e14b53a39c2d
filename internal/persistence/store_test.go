package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func createPatient(t *testing.T, s *Store, first string) domain.Patient {
	t.Helper()
	var created domain.Patient
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreatePatient(domain.Patient{FirstName: first, LastName: "Mensah"})
		return err
	})
	require.NoError(t, err)
	return created
}

func TestStoreSavesAfterCommitAndReloads(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	store, err := NewStore(ctx, backend, nil)
	require.NoError(t, err)
	created := createPatient(t, store, "Ama")
	assert.Equal(t, 1, backend.Saves())
	assert.False(t, store.Dirty())

	reopened, err := NewStore(ctx, backend, nil)
	require.NoError(t, err)
	require.NoError(t, reopened.View(ctx, func(v domain.TransactionView) error {
		got, ok := v.FindPatient(created.ID)
		require.True(t, ok)
		assert.Equal(t, "Ama Mensah", got.FullName())
		return nil
	}))
}

func TestStoreDoesNotSaveRolledBackTransactions(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	m := metrics.New()
	store, err := NewStore(ctx, backend, nil, WithMetrics(m))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreatePatient(domain.Patient{FirstName: "Kofi"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, backend.Saves())
	assert.Equal(t, 1.0, counterValue(t, m, "clinicore_store_transactions_total"))
}

func TestStoreSaveFailureKeepsCommitAndReportsError(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	core, logs := observer.New(zap.ErrorLevel)
	m := metrics.New()
	store, err := NewStore(ctx, backend, nil, WithLogger(zap.New(core)), WithMetrics(m))
	require.NoError(t, err)

	backend.FailSaves = errors.New("disk full")
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreatePatient(domain.Patient{FirstName: "Esi"})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist dataset")
	assert.True(t, store.Dirty())
	assert.Equal(t, 1, logs.FilterMessage("dataset save failed; in-memory state is ahead of storage").Len())
	assert.Equal(t, 1.0, counterValue(t, m, "clinicore_store_persist_errors_total"))

	require.NoError(t, store.View(ctx, func(v domain.TransactionView) error {
		assert.Len(t, v.ListPatients(domain.ListFilter{}), 1)
		return nil
	}))

	backend.FailSaves = nil
	require.NoError(t, store.Close(ctx))
	assert.False(t, store.Dirty())
	assert.Equal(t, 1, backend.Saves())
}

func TestStoreSavesEvenWhenCallerContextIsCancelled(t *testing.T) {
	backend := NewMemoryBackend()
	store, err := NewStore(context.Background(), backend, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		cancel()
		_, err := tx.CreatePatient(domain.Patient{FirstName: "Yaw"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Saves())
}

type brokenBackend struct {
	loadErr error
	payload []byte
}

func (b brokenBackend) Load(context.Context) ([]byte, bool, error) {
	return b.payload, b.payload != nil, b.loadErr
}
func (brokenBackend) Save(context.Context, []byte) error { return nil }
func (brokenBackend) Close() error                       { return nil }

func TestNewStoreLoadErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewStore(ctx, brokenBackend{loadErr: errors.New("offline")}, nil)
	require.ErrorContains(t, err, "load dataset")

	_, err = NewStore(ctx, brokenBackend{payload: []byte("{not json")}, nil)
	require.ErrorContains(t, err, "decode dataset")
}
