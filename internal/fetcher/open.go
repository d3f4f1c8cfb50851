package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Open returns a reader for src, which is either a local path or an http(s) URL.
// The caller must close the returned reader.
func Open(ctx context.Context, src string, client *http.Client) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		f, err := os.Open(src)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", src)
		}
		return f, nil
	}

	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", "leadops/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: GET %s", src)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, eris.Errorf("fetcher: GET %s: status %d", src, resp.StatusCode)
	}
	return resp.Body, nil
}
