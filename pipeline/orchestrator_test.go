package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mls_syncd/config"
	"mls_syncd/geo"
	"mls_syncd/mls"
	"mls_syncd/models"
	"mls_syncd/services"
)

type memRunLog struct {
	created int
	updated int
	last    *models.SyncRun
}

func (l *memRunLog) CreateRun(run *models.SyncRun) (int64, error) {
	l.created++
	return int64(l.created), nil
}

func (l *memRunLog) UpdateRun(run *models.SyncRun) error {
	l.updated++
	cp := *run
	l.last = &cp
	return nil
}

type memStore struct {
	agents   map[string]*models.Agent
	listings map[string]*models.Listing
}

func newMemStore() *memStore {
	return &memStore{
		agents:   make(map[string]*models.Agent),
		listings: make(map[string]*models.Listing),
	}
}

func (s *memStore) GetAgentByMemberKey(ctx context.Context, memberKey string) (*models.Agent, error) {
	if a, ok := s.agents[memberKey]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	cp := *agent
	s.agents[agent.MemberKey] = &cp
	return nil
}

func (s *memStore) GetListingByKey(ctx context.Context, listingKey string) (*models.Listing, error) {
	if l, ok := s.listings[listingKey]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpsertListing(ctx context.Context, listing *models.Listing) error {
	cp := *listing
	s.listings[listing.ListingKey] = &cp
	return nil
}

type fixedGeocoder struct{ calls int }

func (g *fixedGeocoder) Resolve(ctx context.Context, addr models.Address) geo.Result {
	g.calls++
	return geo.Result{Lat: 33.5203, Lng: -101.9185, Resolved: true}
}

const (
	listingsPage = `{"value":[
		{"ListingKey":"L1","ListPrice":250000,"ListAgentKey":"A1","StreetNumberNumeric":4312,"StreetName":"99th Street","City":"Lubbock","StateOrProvince":"TX","PostalCode":"79424","MlsStatus":"Under Contract","ModificationTimestamp":"2026-03-14T09:00:00Z"},
		{"ListingKey":"L2","ListAgentKey":"A1","StreetName":"Main Street","City":"Lubbock","StateOrProvince":"TX","MlsStatus":"Under Contract"},
		{"StreetName":"Orphan Road","City":"Lubbock","StateOrProvince":"TX","MlsStatus":"Under Contract"}
	]}`
	agentsPage = `{"value":[
		{"MemberKey":"A1","MemberFirstName":"Dana","MemberLastName":"Reyes","MemberEmail":"dana@example.com","OfficeName":"Reyes Realty"}
	]}`
)

func newTestOrchestrator(t *testing.T, store *memStore, runLog *memRunLog, authStatus int) (*Orchestrator, *fixedGeocoder) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if authStatus != http.StatusOK {
			http.Error(w, "denied", authStatus)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/Property", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingsPage)
	})
	mux.HandleFunc("/ActiveAgents", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, agentsPage)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.MLSConfig{BaseURL: srv.URL, AuthURL: srv.URL + "/token", RefreshMargin: time.Minute}
	feeds := map[string]*config.FeedConfig{
		mls.FeedPendingListings: {ID: mls.FeedPendingListings, Resource: "Property", PageSize: 100},
		mls.FeedActiveAgents:    {ID: mls.FeedActiveAgents, Resource: "ActiveAgents", PageSize: 100},
	}
	client := mls.NewClient(cfg, feeds, mls.NewCredentialBroker(cfg, srv.Client()), srv.Client())

	gc := &fixedGeocoder{}
	reconciler := services.NewReconciler(store, gc, nil)
	return NewOrchestrator(client, reconciler, runLog), gc
}

func TestRun_FullPipeline(t *testing.T) {
	store := newMemStore()
	runLog := &memRunLog{}
	o, gc := newTestOrchestrator(t, store, runLog, http.StatusOK)

	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The keyless record is dropped during normalization; the run is
	// partial, not failed.
	if run.Outcome != models.RunOutcomePartial {
		t.Fatalf("outcome %s, want %s", run.Outcome, models.RunOutcomePartial)
	}
	if run.ListingsCreated != 2 || run.ListingsSkipped != 1 || run.ErrorsCount != 1 {
		t.Fatalf("created=%d skipped=%d errors=%d", run.ListingsCreated, run.ListingsSkipped, run.ErrorsCount)
	}
	if run.AgentsUpserted != 1 {
		t.Fatalf("agents upserted %d, want 1", run.AgentsUpserted)
	}
	if run.FinishedAt == nil {
		t.Fatal("run not finalized")
	}

	// Complete address gets coordinates, incomplete one is stored without.
	l1 := store.listings["L1"]
	if l1 == nil || !l1.Address.HasCoordinates() {
		t.Fatalf("L1 missing coordinates: %+v", l1)
	}
	if l1.Address.Street != "4312 99th Street" {
		t.Fatalf("unexpected L1 street %q", l1.Address.Street)
	}
	if len(l1.StatusHistory) != 1 || l1.StatusHistory[0].Status != "Under Contract" {
		t.Fatalf("unexpected L1 history %+v", l1.StatusHistory)
	}
	if run.ListingsEnriched != 1 {
		t.Fatalf("enriched %d, want 1", run.ListingsEnriched)
	}

	l2 := store.listings["L2"]
	if l2 == nil || l2.Address.HasCoordinates() {
		t.Fatalf("L2 must be stored without coordinates: %+v", l2)
	}
	if gc.calls != 1 {
		t.Fatalf("geocoder called %d times, want 1", gc.calls)
	}

	if runLog.created != 1 || runLog.updated != 1 {
		t.Fatalf("run log created=%d updated=%d", runLog.created, runLog.updated)
	}
	if runLog.last.Outcome != models.RunOutcomePartial {
		t.Fatalf("recorded outcome %s", runLog.last.Outcome)
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(t, store, &memRunLog{}, http.StatusOK)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if run.ListingsCreated != 0 || run.ListingsUpdated != 2 {
		t.Fatalf("second run created=%d updated=%d", run.ListingsCreated, run.ListingsUpdated)
	}
	if len(store.listings["L1"].StatusHistory) != 1 {
		t.Fatalf("history grew on repeat: %d entries", len(store.listings["L1"].StatusHistory))
	}
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	runLog := &memRunLog{}
	o, _ := newTestOrchestrator(t, newMemStore(), runLog, http.StatusUnauthorized)

	run, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failed auth")
	}
	if !IsRunFatal(err) {
		t.Fatalf("auth failure must be run-fatal, got %v", err)
	}
	if run.Outcome != models.RunOutcomeFailed {
		t.Fatalf("outcome %s, want %s", run.Outcome, models.RunOutcomeFailed)
	}
	if run.Error == "" {
		t.Fatal("run record missing error message")
	}
	if run.FinishedAt == nil {
		t.Fatal("failed run not finalized")
	}
	if runLog.updated != 1 {
		t.Fatalf("failed run must still be recorded, updated=%d", runLog.updated)
	}
}
