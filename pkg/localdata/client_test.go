package localdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metroad/leadops/internal/resilience"
)

const pageJSON = `{
  "result": {
    "header": {
      "paging": {"pageIndex": 2, "totalCount": 1201, "pageSize": 500},
      "process": {"code": "00", "message": "정상처리되었습니다."}
    },
    "body": {
      "rows": [{
        "row": [
          {
            "bplcNm": "연세이비인후과의원",
            "rdnWhlAddr": "서울특별시 중구 세종대로 110",
            "siteWhlAddr": "서울특별시 중구 태평로1가 31",
            "siteTel": "02-123-4567",
            "x": "198000.0",
            "y": "451000.0",
            "apvPermYmd": "2019-05-01",
            "mgtNo": "3000000-101-2019-00001",
            "uptaeNm": "의원",
            "trdStateGbn": "01",
            "opnSvcId": "01_01_02_P",
            "mdprtNm": "이비인후과"
          },
          {"bplcNm": "카페 온도", "trdStateGbn": "03", "opnSvcId": "01_01_02_P"}
        ]
      }]
    }
  }
}`

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestClient(srv *httptest.Server) Client {
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
		WithRetry(fastRetry()),
	)
}

func TestFetchPage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("authKey"))
		assert.Equal(t, "01_01_02_P", q.Get("opnSvcId"))
		assert.Equal(t, "2", q.Get("pageIndex"))
		assert.Equal(t, "500", q.Get("pageSize"))
		assert.Equal(t, "json", q.Get("resultType"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	page, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{
		ServiceID: "01_01_02_P",
		PageIndex: 2,
		PageSize:  500,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Index)
	assert.Equal(t, 1201, page.TotalCount)
	assert.Equal(t, 3, page.PageCount())
	require.Len(t, page.Rows, 2)

	r := page.Rows[0]
	assert.Equal(t, "연세이비인후과의원", r.BusinessName)
	assert.Equal(t, "서울특별시 중구 세종대로 110", r.RoadAddress)
	assert.Equal(t, "서울특별시 중구 태평로1가 31", r.LotAddress)
	assert.Equal(t, "02-123-4567", r.Phone)
	assert.Equal(t, "198000.0", r.X)
	assert.Equal(t, "451000.0", r.Y)
	assert.Equal(t, "2019-05-01", r.LicenseDate)
	assert.Equal(t, "3000000-101-2019-00001", r.ManagementNo)
	assert.Equal(t, "의원", r.Category)
	assert.Equal(t, StateOperating, r.StateCode)
	assert.Equal(t, "이비인후과", r.MedicalSubject)
	assert.Equal(t, "03", page.Rows[1].StateCode)
}

func TestFetchPage_Defaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("pageIndex"))
		assert.Equal(t, "500", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"result":{"header":{"paging":{"totalCount":0},"process":{"code":"00"}},"body":{"rows":[]}}}`))
	}))
	defer srv.Close()

	page, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{ServiceID: "x"})
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.Zero(t, page.PageCount())
}

func TestFetchPage_MissingService(t *testing.T) {
	_, err := NewClient("k").FetchPage(context.Background(), PageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service id is required")
}

func TestFetchPage_APIErrorCode(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"result":{"header":{"process":{"code":"31","message":"인증키가 유효하지 않습니다."}}}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{ServiceID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code=31")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	page, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{ServiceID: "x", PageIndex: 2})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPage_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{ServiceID: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "status 429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPage_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{ServiceID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPage_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPage(context.Background(), PageRequest{ServiceID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv).FetchPage(ctx, PageRequest{ServiceID: "x"})
	require.Error(t, err)
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 500, 0},
		{1, 500, 1},
		{500, 500, 1},
		{501, 500, 2},
		{1000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.size), func(t *testing.T) {
			p := &Page{TotalCount: tt.total, Size: tt.size}
			assert.Equal(t, tt.want, p.PageCount())
		})
	}
}
