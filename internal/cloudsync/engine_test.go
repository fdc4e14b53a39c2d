package cloudsync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/audit"
	"clinicore/internal/changes"
	"clinicore/internal/infra/persistence/memory"
	"clinicore/pkg/domain"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type probeFunc func(context.Context) bool

func (f probeFunc) Reachable(ctx context.Context) bool { return f(ctx) }

var online = probeFunc(func(context.Context) bool { return true })

// remote is a fake authority recording every call.
type remote struct {
	mu      sync.Mutex
	calls   []string
	queries map[string]url.Values
	fail    map[string]int
	pulls   map[string]string
	nextID  int
}

func newRemote() *remote {
	return &remote{queries: map[string]url.Values{}, fail: map[string]int{}, pulls: map[string]string{}}
}

func (r *remote) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := req.Method + " " + req.URL.Path
	r.calls = append(r.calls, call)
	if status, ok := r.fail[call]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("remote failure"))
		return
	}
	switch req.Method {
	case http.MethodPost:
		r.nextID++
		_, _ = fmt.Fprintf(w, `{"id":"r-%d"}`, r.nextID)
	case http.MethodGet:
		r.queries[req.URL.Path] = req.URL.Query()
		body, ok := r.pulls[req.URL.Path]
		if !ok {
			body = "[]"
		}
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// writes returns non-GET calls.
func (r *remote) writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if !strings.HasPrefix(c, http.MethodGet) {
			out = append(out, c)
		}
	}
	return out
}

func (r *remote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *remote) setFail(call string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == 0 {
		delete(r.fail, call)
		return
	}
	r.fail[call] = status
}

type fixture struct {
	store  *memory.Store
	clock  *clock
	remote *remote
	engine *Engine
	log    *changes.Log
}

func newFixture(t *testing.T, probe Prober, cfg Config) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := memory.NewStore(nil, memory.WithClock(c.Now), memory.WithObserver(changes.NewRecorder(nil, nil)))
	rem := newRemote()
	srv := httptest.NewServer(rem)
	t.Cleanup(srv.Close)
	client := NewHTTPClient(ClientConfig{BaseURL: srv.URL, Token: "tok", OrganizationID: "org-1"}, nil)
	if probe == nil {
		probe = online
	}
	cfg.OrganizationID = "org-1"
	engine := NewEngine(store, client, probe, cfg, WithAudit(audit.NewLogger(store, nil, nil)))
	return &fixture{store: store, clock: c, remote: rem, engine: engine, log: changes.NewLog(store)}
}

func (f *fixture) createPatient(t *testing.T, name string) domain.Patient {
	t.Helper()
	var p domain.Patient
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		p, err = tx.CreatePatient(domain.Patient{OrganizationID: "org-1", FirstName: name})
		return err
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) patient(t *testing.T, id string) domain.Patient {
	t.Helper()
	var p domain.Patient
	require.NoError(t, f.store.View(context.Background(), func(v domain.TransactionView) error {
		var ok bool
		p, ok = v.FindPatient(id)
		require.True(t, ok)
		return nil
	}))
	return p
}

func TestSyncNowPushesCreateAndStoresRemoteID(t *testing.T) {
	f := newFixture(t, nil, Config{})
	p := f.createPatient(t, "Ama")

	rep, err := f.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushed)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, 0, rep.PendingAfter)
	assert.True(t, rep.Complete)
	assert.Equal(t, []string{"POST /patients"}, f.remote.writes())

	stored := f.patient(t, p.ID)
	assert.Equal(t, "r-1", stored.RemoteID)
	assert.Equal(t, p.UpdatedAt, stored.UpdatedAt)

	records, err := f.log.All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1, "writing the remote id must not produce a new change record")
	assert.True(t, records[0].Synced)
	require.NotNil(t, records[0].SyncedAt)

	st, err := f.engine.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.LastSyncAt)
	assert.True(t, st.LastSyncAt.Equal(f.clock.Now()))
	assert.Zero(t, st.Pending)
	assert.False(t, st.InFlight)
	assert.Empty(t, st.LastError)

	var entries []domain.AuditEntry
	require.NoError(t, f.store.View(context.Background(), func(v domain.TransactionView) error {
		entries = v.ListAuditEntries()
		return nil
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditSync, entries[0].Action)
	assert.Equal(t, SystemActor, entries[0].ActorID)
	assert.True(t, entries[0].Automated)
}

func TestSyncNowUpdateAndDeleteTargetRemoteID(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	p := f.createPatient(t, "Ama")
	_, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)

	_, err = f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdatePatient(p.ID, func(p *domain.Patient) error {
			p.Phone = "0244000000"
			return nil
		})
		return err
	})
	require.NoError(t, err)
	_, err = f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeletePatient(p.ID)
	})
	require.NoError(t, err)

	rep, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pushed)
	assert.Equal(t, []string{"POST /patients", "PUT /patients/r-1", "DELETE /patients/r-1"}, f.remote.writes())
}

func TestSyncNowDeleteOfMissingRemoteRowCountsAsSynced(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	p := f.createPatient(t, "Ama")
	_, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	_, err = f.store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeletePatient(p.ID) })
	require.NoError(t, err)

	f.remote.setFail("DELETE /patients/r-1", http.StatusNotFound)
	rep, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushed)
	assert.True(t, rep.Complete)
}

func TestPushFailureIncrementsAttemptsAndReportsStuck(t *testing.T) {
	f := newFixture(t, nil, Config{MaxRetries: 2})
	ctx := context.Background()
	f.createPatient(t, "Ama")
	f.createPatient(t, "Kofi")
	f.remote.setFail("POST /patients", http.StatusInternalServerError)

	rep, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 2, rep.PendingAfter)
	assert.Zero(t, rep.Stuck)
	assert.False(t, rep.Complete)

	records, err := f.log.All(ctx)
	require.NoError(t, err)
	for _, r := range records {
		assert.False(t, r.Synced)
		assert.Equal(t, 1, r.Attempts)
		assert.Contains(t, r.LastError, "status 500")
	}
	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2 change records failed to push", st.LastError)

	rep, err = f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Stuck)

	// Stuck records keep being retried.
	f.remote.setFail("POST /patients", 0)
	rep, err = f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pushed)
	assert.True(t, rep.Complete)
	assert.Len(t, f.remote.writes(), 6)

	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.LastError)
}

func TestPullMergesWithLastWriterWins(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	t0 := f.clock.Now()

	var local domain.Patient
	var product domain.Product
	_, err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.SetOrigin(domain.OriginRemote)
		var err error
		local, err = tx.CreatePatient(domain.Patient{Base: domain.Base{RemoteID: "r-9"}, FirstName: "Old"})
		if err != nil {
			return err
		}
		product, err = tx.CreateProduct(domain.Product{Base: domain.Base{RemoteID: "p-1"}, Name: "Local"})
		return err
	})
	require.NoError(t, err)

	newer := t0.Add(time.Hour).Format(time.RFC3339)
	older := t0.Add(-time.Hour).Format(time.RFC3339)
	f.remote.pulls["/patients"] = `[
		{"id":"r-new","first_name":"Yaw","updated_at":"` + newer + `"},
		{"id":"r-9","first_name":"Newer","updated_at":"` + newer + `"},
		{"first_name":"no id"}
	]`
	f.remote.pulls["/products"] = `{"data":[{"id":"p-1","name":"Remote","updated_at":"` + older + `"}]}`

	rep, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Pulled)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 1, rep.Overwritten)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Equal(t, 1, rep.Skipped)
	assert.True(t, rep.Complete, "merged rows must not be queued for push")

	overwritten := f.patient(t, local.ID)
	assert.Equal(t, "Newer", overwritten.FirstName)
	assert.Equal(t, "r-9", overwritten.RemoteID)
	assert.True(t, overwritten.UpdatedAt.Equal(t0.Add(time.Hour)))

	require.NoError(t, f.store.View(ctx, func(v domain.TransactionView) error {
		patients := v.ListPatients(domain.ListFilter{})
		require.Len(t, patients, 2)
		inserted := patients[1]
		assert.NotEqual(t, "r-new", inserted.ID)
		assert.NotEmpty(t, inserted.ID)
		assert.Equal(t, "r-new", inserted.RemoteID)
		assert.Equal(t, "Yaw", inserted.FirstName)

		kept, ok := v.FindProduct(product.ID)
		require.True(t, ok)
		assert.Equal(t, "Local", kept.Name)
		return nil
	}))

	records, err := f.log.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.NotContains(t, f.remote.queries["/patients"], "modified_since")
	assert.Equal(t, "org-1", f.remote.queries["/patients"].Get("org_id"))

	f.clock.advance(time.Minute)
	_, err = f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Format(time.RFC3339), f.remote.queries["/patients"].Get("modified_since"))
}

func TestPullTranslatesReferencesToLocalIDs(t *testing.T) {
	f := newFixture(t, nil, Config{Entities: []domain.EntityType{
		domain.EntityPrescription, domain.EntityEncounter, domain.EntityPatient,
	}})
	ctx := context.Background()
	stamp := f.clock.Now().Add(-time.Hour).Format(time.RFC3339)
	f.remote.pulls["/patients"] = `[{"id":"R-P1","first_name":"Akosua","updated_at":"` + stamp + `"}]`
	f.remote.pulls["/encounters"] = `[{"id":"R-E1","patient_id":"R-P1","updated_at":"` + stamp + `"}]`
	f.remote.pulls["/prescriptions"] = `[{"id":"R-RX1","patient_id":"R-P9","encounter_id":"R-E1","updated_at":"` + stamp + `"}]`

	rep, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 1, rep.Deferred)
	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.LastSyncAt, "deferred rows keep the watermark")

	var patient domain.Patient
	require.NoError(t, f.store.View(ctx, func(v domain.TransactionView) error {
		patients := v.ListPatients(domain.ListFilter{})
		require.Len(t, patients, 1)
		patient = patients[0]
		encounters := v.ListEncounters(domain.ListFilter{PatientID: patient.ID})
		require.Len(t, encounters, 1)
		assert.Equal(t, "R-E1", encounters[0].RemoteID)
		assert.Empty(t, v.ListPrescriptions(domain.ListFilter{}))
		return nil
	}))

	restarted := memory.NewStore(nil)
	restarted.ImportState(f.store.ExportState())
	require.NoError(t, restarted.View(ctx, func(v domain.TransactionView) error {
		assert.Len(t, v.ListEncounters(domain.ListFilter{PatientID: patient.ID}), 1)
		return nil
	}))

	f.remote.pulls["/patients"] = `[
		{"id":"R-P1","first_name":"Akosua","updated_at":"` + stamp + `"},
		{"id":"R-P9","first_name":"Kwame","updated_at":"` + stamp + `"}
	]`
	rep, err = f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Inserted)
	assert.Zero(t, rep.Deferred)
	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.NotNil(t, st.LastSyncAt)

	require.NoError(t, f.store.View(ctx, func(v domain.TransactionView) error {
		kwame := v.ListPatients(domain.ListFilter{Search: "Kwame"})
		require.Len(t, kwame, 1)
		rx := v.ListPrescriptions(domain.ListFilter{PatientID: kwame[0].ID})
		require.Len(t, rx, 1)
		encounters := v.ListEncounters(domain.ListFilter{})
		require.Len(t, encounters, 1)
		assert.Equal(t, encounters[0].ID, rx[0].EncounterID)
		return nil
	}))
}

func TestPushHoldsLaterRecordsOfAFailedRow(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	p := f.createPatient(t, "Ama")
	_, err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeletePatient(p.ID) })
	require.NoError(t, err)
	f.remote.setFail("POST /patients", http.StatusInternalServerError)

	rep, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Held)
	assert.Equal(t, 2, rep.PendingAfter)
	assert.Equal(t, []string{"POST /patients"}, f.remote.writes())

	records, err := f.log.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Attempts)
	assert.Zero(t, records[1].Attempts)

	f.remote.setFail("POST /patients", 0)
	rep, err = f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pushed)
	assert.True(t, rep.Complete)
	assert.Equal(t, []string{"POST /patients", "POST /patients", "DELETE /patients/r-1"}, f.remote.writes())

	require.NoError(t, f.store.View(ctx, func(v domain.TransactionView) error {
		_, ok := v.Setting(detachedRemoteIDSetting(domain.EntityPatient, p.ID))
		assert.False(t, ok)
		return nil
	}))
}

func TestPullFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.remote.setFail("GET /sales", http.StatusBadGateway)

	_, err := f.engine.SyncNow(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "pull sale")

	st, err := f.engine.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.LastSyncAt)
	assert.Contains(t, st.LastError, "status 502")
}

func TestSyncNowOfflineAndBusy(t *testing.T) {
	f := newFixture(t, probeFunc(func(context.Context) bool { return false }), Config{})
	f.createPatient(t, "Ama")

	_, err := f.engine.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
	assert.Empty(t, f.remote.writes())
	st, err := f.engine.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ErrOffline.Error(), st.LastError)
	assert.Equal(t, 1, st.Pending)

	f.engine.inFlight.Store(true)
	_, err = f.engine.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	st, err = f.engine.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.InFlight)
}

func TestTickRequiresReachabilityAndPendingChanges(t *testing.T) {
	reachable := false
	f := newFixture(t, probeFunc(func(context.Context) bool { return reachable }), Config{})
	ctx := context.Background()

	f.createPatient(t, "Ama")
	f.engine.tick(ctx)
	assert.Zero(t, f.remote.count(), "offline tick must not contact the remote")

	reachable = true
	f.engine.inFlight.Store(true)
	f.engine.tick(ctx)
	assert.Zero(t, f.remote.count(), "busy tick must not contact the remote")
	f.engine.inFlight.Store(false)

	f.engine.tick(ctx)
	assert.Equal(t, []string{"POST /patients"}, f.remote.writes())

	calls := f.remote.count()
	f.engine.tick(ctx)
	assert.Equal(t, calls, f.remote.count(), "nothing pending, nothing to do")
}

func TestStartSchedulesTicks(t *testing.T) {
	f := newFixture(t, nil, Config{Interval: 20 * time.Millisecond})
	f.createPatient(t, "Ama")

	require.NoError(t, f.engine.Start(context.Background()))
	require.NoError(t, f.engine.Start(context.Background()))
	defer f.engine.Stop()

	require.Eventually(t, func() bool {
		pending, _, err := f.log.Counts(context.Background(), DefaultMaxRetries)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)

	f.engine.Stop()
	f.engine.Stop()
}
