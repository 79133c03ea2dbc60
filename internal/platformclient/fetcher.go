// Package platformclient is the Indexing Worker's one outbound dependency on
// the chat platform itself: downloading attachment bytes from the
// source_url a gateway event carried (§4.7 ingest_attachment). Grounded on
// the same hand-rolled-HTTP-client style as the vectorstore Qdrant adapter:
// no CDN SDK, a bounded io.LimitReader, typed domain errors.
package platformclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yungbote/convoindex/internal/domain"
)

// HTTPFetcher retrieves attachment bytes over plain HTTP(S), capping the
// response body at maxBytes so a misreported Content-Length or a
// slow/oversized upstream can't exhaust worker memory.
type HTTPFetcher struct {
	http *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{http: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, domain.Permanent("platformclient.fetch", "build request", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, domain.Transient("platformclient.fetch", "request attachment bytes", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, domain.Permanent("platformclient.fetch", fmt.Sprintf("attachment source gone: %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Transient("platformclient.fetch", fmt.Sprintf("unexpected status: %d", resp.StatusCode), nil)
	}

	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, domain.Transient("platformclient.fetch", "read attachment body", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, domain.Permanent("platformclient.fetch", fmt.Sprintf("attachment exceeds %d byte limit", maxBytes), nil)
	}
	return body, nil
}
