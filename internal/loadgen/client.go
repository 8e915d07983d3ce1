package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/feedrank/pkg/logger"
)

const progressInterval = time.Second

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type submitOutcome int

const (
	outcomeAccepted submitOutcome = iota
	outcomeDuplicate
	outcomeThrottled
	outcomeFailed
)

// submitEvents posts events with cfg.Workers concurrent submitters.
func submitEvents(ctx context.Context, cfg *Config, c *httpClient, events []Event, stats *Stats, log logger.Logger) {
	var (
		submitted, accepted, duplicate, throttled, failed atomic.Int64
		lastReport                                        atomic.Int64
	)

	work := make(chan Event, cfg.Workers*2)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range work {
				switch submitSingleEvent(ctx, c, e) {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				case outcomeThrottled:
					throttled.Add(1)
				default:
					failed.Add(1)
				}
				n := submitted.Add(1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if cfg.Verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int64("submitted", n), logger.Int("total", len(events)),
						logger.Int64("duplicate", duplicate.Load()), logger.Int64("failed", failed.Load()))
				}
			}
		}()
	}

send:
	for _, e := range events {
		select {
		case <-ctx.Done():
			break send
		case work <- e:
		}
	}
	close(work)
	wg.Wait()

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsThrottled = int(throttled.Load())
	stats.EventsFailed = int(failed.Load())
}

func submitSingleEvent(ctx context.Context, c *httpClient, e Event) submitOutcome { //nolint:gocritic // hugeParam
	var ack AckResponse
	status, err := c.do(ctx, http.MethodPost, "/events", e, &ack)
	switch {
	case err != nil:
		return outcomeFailed
	case status == http.StatusAccepted:
		return outcomeAccepted
	case status == http.StatusOK && ack.Duplicate:
		return outcomeDuplicate
	case status == http.StatusTooManyRequests:
		return outcomeThrottled
	default:
		return outcomeFailed
	}
}
