package changes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/infra/persistence/memory"
	"clinicore/pkg/domain"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newStore(t *testing.T, kinds ...domain.EntityType) (*memory.Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := memory.NewStore(nil, memory.WithClock(c.Now), memory.WithObserver(NewRecorder(kinds, nil)))
	return store, c
}

func TestRecorderAppendsOneRecordPerTrackedMutation(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	var patient domain.Patient
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		patient, err = tx.CreatePatient(domain.Patient{FirstName: "Akua"})
		if err != nil {
			return err
		}
		_, err = tx.CreateSupplier(domain.Supplier{Name: "MedCo"})
		return err
	})
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdatePatient(patient.ID, func(p *domain.Patient) error {
			p.Phone = "0244000000"
			return nil
		})
		return err
	})
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeletePatient(patient.ID)
	})
	require.NoError(t, err)

	records, err := NewLog(store).All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	ops := []domain.Action{records[0].Operation, records[1].Operation, records[2].Operation}
	assert.Equal(t, []domain.Action{domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete}, ops)
	for i, rec := range records {
		assert.Equal(t, domain.EntityPatient, rec.EntityKind)
		assert.Equal(t, patient.ID, rec.EntityID)
		assert.False(t, rec.Synced)
		assert.Zero(t, rec.Attempts)
		assert.Equal(t, int64(i+1), rec.Seq)
	}

	var deleted domain.Patient
	require.NoError(t, records[2].Payload.Decode(&deleted))
	assert.Equal(t, "0244000000", deleted.Phone)
}

func TestRecorderSkipsNonLocalOrigins(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	var product domain.Product
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.SetOrigin(domain.OriginRemote)
		var err error
		product, err = tx.CreateProduct(domain.Product{Base: domain.Base{RemoteID: "r-1"}, Name: "Paracetamol"})
		return err
	})
	require.NoError(t, err)
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.SetOrigin(domain.OriginSystem)
		_, err := tx.UpdateProduct(product.ID, func(p *domain.Product) error {
			p.ReorderLevel = 4
			return nil
		})
		return err
	})
	require.NoError(t, err)

	pending, err := NewLog(store).Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecorderCustomAllowList(t *testing.T) {
	r := NewRecorder(ParseEntities([]string{"supplier", "", "supplier"}), nil)
	assert.True(t, r.Tracks(domain.EntitySupplier))
	assert.False(t, r.Tracks(domain.EntityPatient))
	assert.Equal(t, []domain.EntityType{domain.EntitySupplier}, r.Entities())

	assert.Equal(t, DefaultEntities, NewRecorder(nil, nil).Entities())
}

func TestLogSyncBookkeeping(t *testing.T) {
	store, c := newStore(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B"} {
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateProduct(domain.Product{Name: name})
			return err
		})
		require.NoError(t, err)
	}
	log := NewLog(store)
	pending, err := log.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	synced, err := log.MarkSynced(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.True(t, synced.Synced)
	require.NotNil(t, synced.SyncedAt)

	for range 3 {
		_, err = log.RecordFailure(ctx, pending[1].ID, errors.New("503 from remote"))
		require.NoError(t, err)
	}
	stuck, err := log.Stuck(ctx, 3)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, 3, stuck[0].Attempts)
	assert.Equal(t, "503 from remote", stuck[0].LastError)

	p, s, err := log.Counts(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, p)
	assert.Zero(t, s)

	_, err = log.MarkSynced(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	removed, err := log.Compact(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	c.now = c.now.Add(2 * time.Hour)
	removed, err = log.Compact(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	all, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, pending[1].ID, all[0].ID)
}

func TestIsStuck(t *testing.T) {
	assert.False(t, IsStuck(domain.ChangeRecord{Attempts: 9}, 0))
	assert.True(t, IsStuck(domain.ChangeRecord{Attempts: 5}, 5))
	assert.False(t, IsStuck(domain.ChangeRecord{Attempts: 5, Synced: true}, 5))
}
