// Package localdata provides a client for the LOCALDATA business-license open API.
package localdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/metroad/leadops/internal/resilience"
)

// DefaultBaseURL is the LOCALDATA open API endpoint.
const DefaultBaseURL = "http://www.localdata.go.kr/platform/rest/TO0/openDataApi"

const codeOK = "00"

// Client defines the LOCALDATA open API operations.
type Client interface {
	// FetchPage returns one page of license records for a service.
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// PageRequest selects a page of one open service (opnSvcId).
type PageRequest struct {
	ServiceID string
	PageIndex int // 1-based
	PageSize  int
}

// Page is one parsed response page.
type Page struct {
	Index      int
	Size       int
	TotalCount int
	Rows       []Row
}

// PageCount returns the number of pages needed to read TotalCount rows.
func (p *Page) PageCount() int {
	if p.Size <= 0 || p.TotalCount <= 0 {
		return 0
	}
	return (p.TotalCount + p.Size - 1) / p.Size
}

// Row is a single business-license record. Only the fields the lead pipeline uses are decoded.
type Row struct {
	BusinessName   string `json:"bplcNm"`
	RoadAddress    string `json:"rdnWhlAddr"`
	LotAddress     string `json:"siteWhlAddr"`
	Phone          string `json:"siteTel"`
	X              string `json:"x"`
	Y              string `json:"y"`
	LicenseDate    string `json:"apvPermYmd"`
	ManagementNo   string `json:"mgtNo"`
	Category       string `json:"uptaeNm"`
	StateCode      string `json:"trdStateGbn"`
	ServiceID      string `json:"opnSvcId"`
	MedicalSubject string `json:"mdprtNm"`
}

// StateOperating is the trdStateGbn code for a business that is open.
const StateOperating = "01"

type apiResponse struct {
	Result struct {
		Header struct {
			Paging struct {
				PageIndex  int `json:"pageIndex"`
				TotalCount int `json:"totalCount"`
				PageSize   int `json:"pageSize"`
			} `json:"paging"`
			Process struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"process"`
		} `json:"header"`
		Body struct {
			Rows []struct {
				Row []Row `json:"row"`
			} `json:"rows"`
		} `json:"body"`
	} `json:"result"`
}

// Option configures the LOCALDATA client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	authKey string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a LOCALDATA client authenticated with authKey.
func NewClient(authKey string, opts ...Option) Client {
	c := &httpClient{
		authKey: authKey,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("localdata", "fetch_page")
	}
	return c
}

func (c *httpClient) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if req.ServiceID == "" {
		return nil, eris.New("localdata: service id is required")
	}
	if req.PageIndex < 1 {
		req.PageIndex = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 500
	}

	q := url.Values{}
	q.Set("authKey", c.authKey)
	q.Set("opnSvcId", req.ServiceID)
	q.Set("pageIndex", strconv.Itoa(req.PageIndex))
	q.Set("pageSize", strconv.Itoa(req.PageSize))
	q.Set("resultType", "json")
	endpoint := c.baseURL + "?" + q.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "localdata: rate limit wait")
		}
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "localdata: fetch %s page %d", req.ServiceID, req.PageIndex)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "localdata: decode response")
	}

	proc := resp.Result.Header.Process
	if proc.Code != codeOK {
		return nil, eris.Errorf("localdata: api error code=%s: %s", proc.Code, proc.Message)
	}

	page := &Page{
		Index:      req.PageIndex,
		Size:       req.PageSize,
		TotalCount: resp.Result.Header.Paging.TotalCount,
	}
	for _, r := range resp.Result.Body.Rows {
		page.Rows = append(page.Rows, r.Row...)
	}
	return page, nil
}

func (c *httpClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "localdata: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "localdata: request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "localdata: request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "localdata: read body"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := eris.Errorf("localdata: status %d: %s", resp.StatusCode, truncate(body, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
