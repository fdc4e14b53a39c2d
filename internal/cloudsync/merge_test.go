package cloudsync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/infra/persistence/memory"
	"clinicore/pkg/domain"
)

func TestMergeReusesOneIndexPerKind(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		tx.SetOrigin(domain.OriginRemote)
		refs := newRefResolver(tx)
		patients := mergers[domain.EntityPatient]
		encounters := mergers[domain.EntityEncounter]

		steps := []struct {
			m    merger
			raw  string
			want string
		}{
			{patients, `{"id":"R-1","first_name":"Abena","updated_at":"2024-01-01T00:00:00Z"}`, OutcomeInserted},
			{patients, `{"id":"R-1","first_name":"Abena K.","updated_at":"2024-02-01T00:00:00Z"}`, OutcomeOverwritten},
			{patients, `{"id":"R-1","first_name":"Stale","updated_at":"2023-12-01T00:00:00Z"}`, OutcomeUnchanged},
			{encounters, `{"id":"R-E1","patient_id":"R-1","updated_at":"2024-02-01T00:00:00Z"}`, OutcomeInserted},
			{encounters, `{"id":"R-E2","patient_id":"R-404","updated_at":"2024-02-01T00:00:00Z"}`, OutcomeDeferred},
		}
		for _, step := range steps {
			got, err := step.m.merge(tx, refs, json.RawMessage(step.raw))
			require.NoError(t, err)
			assert.Equal(t, step.want, got, step.raw)
		}
		assert.Len(t, refs.indexes, 2)

		rows := tx.ListPatients(domain.ListFilter{})
		require.Len(t, rows, 1)
		assert.Equal(t, "Abena K.", rows[0].FirstName)
		assert.Equal(t, rows[0].ID, refs.indexes[domain.EntityPatient].remote["R-1"])

		visits := tx.ListEncounters(domain.ListFilter{PatientID: rows[0].ID})
		require.Len(t, visits, 1)
		assert.Equal(t, "R-E1", visits[0].RemoteID)
		return nil
	})
	require.NoError(t, err)
}

func TestSortForMergePutsParentsFirst(t *testing.T) {
	kinds := []domain.EntityType{domain.EntitySale, domain.EntityPrescription, domain.EntityPatient, domain.EntityProduct}
	sortForMerge(kinds)
	assert.Equal(t, []domain.EntityType{
		domain.EntityProduct, domain.EntityPatient, domain.EntityPrescription, domain.EntitySale,
	}, kinds)
}
