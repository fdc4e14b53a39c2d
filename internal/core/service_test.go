package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/audit"
	"clinicore/internal/config"
	"clinicore/internal/infra/persistence/memory"
	"clinicore/internal/persistence"
	"clinicore/pkg/domain"
)

var pharmacist = &Session{ActorID: "u-1", ActorName: "Esi", Role: domain.RolePharmacist, OrganizationID: "org-1", FacilityID: "fac-1"}

type fixture struct {
	svc *Service
	now time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithClock(func() time.Time { return f.now }))
	f.svc = NewService(store, opts...)
	return f
}

func (f *fixture) entries(t *testing.T, flt audit.Filter) []domain.AuditEntry {
	t.Helper()
	out, err := f.svc.Audit().Query(context.Background(), flt)
	require.NoError(t, err)
	return out
}

func (f *fixture) pending(t *testing.T) []domain.ChangeRecord {
	t.Helper()
	out, err := f.svc.Changes().Pending(context.Background())
	require.NoError(t, err)
	return out
}

func (f *fixture) patient(t *testing.T) domain.Patient {
	t.Helper()
	p, _, err := f.svc.CreatePatient(context.Background(), pharmacist, domain.Patient{OrganizationID: "org-1", FirstName: "Kofi", LastName: "Mensah"})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, onHand int64) (domain.Product, domain.InventoryItem) {
	t.Helper()
	ctx := context.Background()
	product, _, err := f.svc.CreateProduct(ctx, pharmacist, domain.Product{OrganizationID: "org-1", Name: "Paracetamol 500mg", SKU: "PCM-500", UnitPrice: decimal.NewFromInt(5)})
	require.NoError(t, err)
	item, _, err := f.svc.CreateInventoryItem(ctx, pharmacist, domain.InventoryItem{OrganizationID: "org-1", FacilityID: "fac-1", ProductID: product.ID, QuantityOnHand: onHand})
	require.NoError(t, err)
	return product, item
}

func TestCreateAuditsAndTracksChange(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.MRN)

	entries := f.entries(t, audit.Filter{EntityID: p.ID})
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditCreate, entries[0].Action)
	assert.Equal(t, "Kofi Mensah", entries[0].EntityName)
	assert.True(t, entries[0].Sensitive)
	assert.Equal(t, "u-1", entries[0].ActorID)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EntityPatient, pending[0].EntityKind)
	assert.Equal(t, domain.ActionCreate, pending[0].Operation)
}

func TestUpdateAndDeleteUnknownID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.svc.UpdateSupplier(ctx, pharmacist, "missing", func(*domain.Supplier) error { return nil })
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.DeleteSupplier(ctx, pharmacist, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.entries(t, audit.Filter{}))
}

func TestUpdateRecordsDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _, err := f.svc.CreateSupplier(ctx, pharmacist, domain.Supplier{OrganizationID: "org-1", Name: "MedSupply"})
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	updated, ok, err := f.svc.UpdateSupplier(ctx, pharmacist, s.ID, func(s *domain.Supplier) error {
		s.Name = "MedSupply Ltd"
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.now, updated.UpdatedAt)

	entries := f.entries(t, audit.Filter{Action: domain.AuditUpdate})
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].Changes)
	assert.Equal(t, "name", entries[0].Changes[0].Field)

	ok, err = f.svc.DeleteSupplier(ctx, pharmacist, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found := f.svc.GetSupplier(ctx, s.ID)
	assert.False(t, found)
	assert.Len(t, f.entries(t, audit.Filter{Action: domain.AuditDelete}), 1)
}

func TestBlockedWriteRollsBackAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, item := f.stock(t, 3)
	before := len(f.entries(t, audit.Filter{}))

	_, ok, err := f.svc.UpdateInventoryItem(ctx, pharmacist, item.ID, func(i *domain.InventoryItem) error {
		i.QuantityOnHand = -1
		return nil
	})
	var violation domain.RuleViolationError
	require.ErrorAs(t, err, &violation)
	assert.False(t, ok)
	assert.Len(t, f.entries(t, audit.Filter{}), before)

	got, found := f.svc.GetInventoryItem(ctx, item.ID)
	require.True(t, found)
	assert.EqualValues(t, 3, got.QuantityOnHand)
}

func TestOpenMemoryDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = persistence.DriverMemory
	cfg.Sales.StockPolicy = "strict"
	cfg.Sync.Entities = []string{"patient", "sale"}

	svc, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.Close(context.Background())) })

	assert.Equal(t, "strict", string(svc.Sales().Policy()))
	assert.Equal(t, []domain.EntityType{domain.EntityPatient, domain.EntitySale}, svc.TrackedEntities())

	_, _, err = svc.CreateSupplier(context.Background(), pharmacist, domain.Supplier{OrganizationID: "org-1", Name: "Untracked"})
	require.NoError(t, err)
	pending, err := svc.Changes().Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOpenRejectsUnknownPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = persistence.DriverMemory
	cfg.Sales.StockPolicy = "lenient"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSyncEnginePushesTrackedChanges(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)

	var mu sync.Mutex
	var posted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost:
			posted = append(posted, r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"remote-1"}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	cfg := config.Default().Sync
	cfg.BaseURL = srv.URL
	cfg.RatePerSecond = 100
	engine := f.svc.SyncEngine(cfg, "org-1", srv.Client())

	report, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, []string{"/patients"}, posted)
	assert.Empty(t, f.pending(t))

	got, ok := f.svc.GetPatient(context.Background(), pharmacist, p.ID)
	require.True(t, ok)
	assert.Equal(t, "remote-1", got.RemoteID)
}
