package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metroad/leadops/internal/ingest"
	"github.com/metroad/leadops/internal/lead"
	"github.com/metroad/leadops/internal/reconcile"
	"github.com/metroad/leadops/internal/store"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type mockIngester struct {
	gotServiceID string
	result       *ingest.Result
	err          error
}

func (m *mockIngester) Run(_ context.Context, serviceID string) (*ingest.Result, error) {
	m.gotServiceID = serviceID
	return m.result, m.err
}

// failingStore breaks every listing.
type failingStore struct {
	store.Store
}

func (failingStore) ListLeads(context.Context, store.ListFilter) ([]lead.Lead, error) {
	return nil, errors.New("connection refused")
}

func newTestStore(t *testing.T, leads ...lead.Lead) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	if len(leads) > 0 {
		_, err = st.InsertLeads(context.Background(), leads)
		require.NoError(t, err)
	}
	return st
}

func newTestServer(t *testing.T, st store.Store, ing Ingester, opts Options) http.Handler {
	t.Helper()
	rec := reconcile.New(st, reconcile.Options{CheckBizID: opts.CheckBizID})
	return NewServer(st, rec, ing, opts).Router()
}

func storedLead(id, name, road string, minute int) lead.Lead {
	return lead.Lead{
		ID:           id,
		BusinessName: name,
		RoadAddress:  road,
		Status:       lead.StatusNew,
		CreatedAt:    base.Add(time.Duration(minute) * time.Minute),
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, newTestStore(t), nil, Options{})
	w := doRequest(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestListLeads_HidesDuplicates(t *testing.T) {
	st := newTestStore(t,
		storedLead("a", "스타벅스 강남점", "서울 강남구 테헤란로 1", 0),
		storedLead("b", "스타벅스  강남점", "서울 강남구 테헤란로 1", 1),
		storedLead("c", "스타벅스 강남역점", "서울 강남구 테헤란로 1", 2),
		storedLead("d", "연세이비인후과", "서울 중구 세종대로 110", 3),
	)

	t.Run("similarity on", func(t *testing.T) {
		h := newTestServer(t, st, nil, Options{DisplaySimilarity: true, SimilarityThreshold: 0.8})
		w := doRequest(t, h, http.MethodGet, "/api/leads", "")
		require.Equal(t, http.StatusOK, w.Code)

		var page leadsPage
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
		assert.Equal(t, 2, page.UniqueCount)
		assert.Equal(t, 2, page.DuplicateCount)
		require.Len(t, page.Leads, 2)
		assert.Equal(t, "a", page.Leads[0].ID)
		assert.Equal(t, "d", page.Leads[1].ID)
	})

	t.Run("similarity off", func(t *testing.T) {
		h := newTestServer(t, st, nil, Options{DisplaySimilarity: false})
		w := doRequest(t, h, http.MethodGet, "/api/leads", "")
		require.Equal(t, http.StatusOK, w.Code)

		var page leadsPage
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
		assert.Equal(t, 3, page.UniqueCount)
		assert.Equal(t, 1, page.DuplicateCount)
	})
}

func TestListLeads_Paging(t *testing.T) {
	st := newTestStore(t,
		storedLead("a", "A", "1", 0),
		storedLead("b", "B", "2", 1),
		storedLead("c", "C", "3", 2),
	)
	h := newTestServer(t, st, nil, Options{})

	w := doRequest(t, h, http.MethodGet, "/api/leads?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page leadsPage
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
	require.Len(t, page.Leads, 2)
	assert.Equal(t, "b", page.Leads[0].ID)
	assert.Equal(t, 3, page.UniqueCount)

	w = doRequest(t, h, http.MethodGet, "/api/leads?offset=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
	assert.Empty(t, page.Leads)
}

func TestListLeads_BadParams(t *testing.T) {
	h := newTestServer(t, newTestStore(t), nil, Options{})

	for _, path := range []string{
		"/api/leads?status=archived",
		"/api/leads?limit=0",
		"/api/leads?limit=abc",
		"/api/leads?offset=-1",
	} {
		w := doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		env := decode(t, w)
		assert.False(t, env.Success)
		assert.NotEmpty(t, env.Message)
	}
}

func TestListLeads_StoreError(t *testing.T) {
	h := newTestServer(t, failingStore{Store: newTestStore(t)}, nil, Options{})
	w := doRequest(t, h, http.MethodGet, "/api/leads", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "list leads failed", env.Message)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestUpdateStatus(t *testing.T) {
	st := newTestStore(t, storedLead("a", "A", "1", 0))
	h := newTestServer(t, st, nil, Options{})

	w := doRequest(t, h, http.MethodPatch, "/api/leads/a/status", `{"status":"contacted"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := st.GetLeads(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, lead.StatusContacted, got[0].Status)

	w = doRequest(t, h, http.MethodPatch, "/api/leads/missing/status", `{"status":"contacted"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, h, http.MethodPatch, "/api/leads/a/status", `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodPatch, "/api/leads/a/status", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDedupStatsAndGroups(t *testing.T) {
	st := newTestStore(t,
		storedLead("a", "Cafe", "Road 1", 0),
		storedLead("b", "cafe", "road 1", 1),
		storedLead("c", "Bakery", "Road 2", 2),
	)
	h := newTestServer(t, st, nil, Options{})

	w := doRequest(t, h, http.MethodGet, "/api/dedup/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Total         int     `json:"total"`
		Duplicates    int     `json:"duplicates"`
		DuplicateRate float64 `json:"duplicate_rate"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Duplicates)
	assert.InDelta(t, 1.0/3.0, stats.DuplicateRate, 1e-9)

	w = doRequest(t, h, http.MethodGet, "/api/dedup/stats?threshold=2", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodGet, "/api/dedup/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	var groups [][]lead.Lead
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &groups))
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestDedupGroups_EmptyIsArray(t *testing.T) {
	h := newTestServer(t, newTestStore(t), nil, Options{})
	w := doRequest(t, h, http.MethodGet, "/api/dedup/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(decode(t, w).Data))
}

func TestMergeGroup(t *testing.T) {
	rich := storedLead("b", "Clinic", "Road 1", 1)
	rich.Phone = "02-000-0000"
	donor := storedLead("a", "Clinic", "Road 1", 0)
	donor.LotAddress = "Lot 7"
	st := newTestStore(t, donor, rich)
	h := newTestServer(t, st, nil, Options{})

	w := doRequest(t, h, http.MethodPost, "/api/dedup/merge", `{"ids":["a","b"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var merged lead.Lead
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &merged))
	assert.Equal(t, "b", merged.ID)
	assert.Equal(t, "Lot 7", merged.LotAddress)

	all, err := st.ListLeads(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "Lot 7", all[0].LotAddress)
}

func TestMergeGroup_Errors(t *testing.T) {
	h := newTestServer(t, newTestStore(t, storedLead("a", "A", "1", 0)), nil, Options{})

	w := doRequest(t, h, http.MethodPost, "/api/dedup/merge", `{"ids":["a","a"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodPost, "/api/dedup/merge", `{"ids":["a","zzz"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanup(t *testing.T) {
	st := newTestStore(t,
		storedLead("a", "Cafe", "Road 1", 0),
		storedLead("b", "CAFE", "Road 1", 1),
		storedLead("c", "Bakery", "Road 2", 2),
	)
	h := newTestServer(t, st, nil, Options{})

	w := doRequest(t, h, http.MethodPost, "/api/dedup/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res reconcile.CleanupResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Deleted)

	keys, err := st.ListKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "a", keys[0].ID)
}

func TestIngest(t *testing.T) {
	st := newTestStore(t, storedLead("old", "Cafe", "Road 1", 0))
	ing := &mockIngester{result: &ingest.Result{
		ServiceID: "01_01_02_P",
		Fetched:   2,
		Leads: []lead.Lead{
			{ID: "n1", BusinessName: "cafe", RoadAddress: "road 1", Status: lead.StatusNew},
			{ID: "n2", BusinessName: "Clinic", RoadAddress: "Road 9", Status: lead.StatusNew},
		},
	}}
	h := newTestServer(t, st, ing, Options{ServiceIDs: []string{"01_01_02_P"}})

	w := doRequest(t, h, http.MethodPost, "/api/ingest", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "01_01_02_P", ing.gotServiceID)

	var resp struct {
		Ingest ingest.Result         `json:"ingest"`
		Save   reconcile.SaveResult `json:"save"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, 2, resp.Ingest.Fetched)
	assert.Equal(t, 1, resp.Save.Inserted)
	assert.Equal(t, 1, resp.Save.Skipped)

	w = doRequest(t, h, http.MethodPost, "/api/ingest", `{"service_id":"07_24_04_P"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "07_24_04_P", ing.gotServiceID)
}

func TestIngest_Errors(t *testing.T) {
	st := newTestStore(t)

	h := newTestServer(t, st, nil, Options{})
	w := doRequest(t, h, http.MethodPost, "/api/ingest", `{"service_id":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ing := &mockIngester{err: errors.New("upstream 500")}
	h = newTestServer(t, st, ing, Options{})
	w = doRequest(t, h, http.MethodPost, "/api/ingest", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodPost, "/api/ingest", `{"service_id":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, decode(t, w).Success)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, newTestStore(t), nil, Options{AllowOrigins: []string{"https://crm.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/leads", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://crm.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	h := requestLogger(recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	w := doRequest(t, h, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal error"}`, w.Body.String())
}
