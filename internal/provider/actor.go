package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/flatwatch/flatwatch/internal/normalize"
)

const defaultAPIBase = "https://api.apify.com"

// pollInterval and pollLimit bound the async run wait: 60 polls at 2 s
// covers the 2 minute budget the actors usually finish within.
const (
	pollInterval = 2 * time.Second
	pollLimit    = 60
)

const runAttempts = 3

// retryBackoffs[i] is the wait after failed attempt i+1.
var retryBackoffs = []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}

// fetchFunc performs one HTTP exchange. Injectable for tests.
type fetchFunc func(ctx context.Context, method, url string, body []byte) (status int, respBody []byte, err error)

// actorClient runs Apify actors and returns their dataset items. Sync
// mode uses run-sync-get-dataset-items; async mode creates a run, polls
// it to a terminal state, then fetches the dataset.
type actorClient struct {
	token   string
	baseURL string
	sync    bool
	timeout time.Duration

	fetch fetchFunc
	sleep func(ctx context.Context, d time.Duration) error
}

// newActorClient builds a client on a shared HTTP client. timeout bounds
// each individual HTTP exchange, not the whole run.
func newActorClient(hc *http.Client, token string, syncRun bool, timeout time.Duration) *actorClient {
	return &actorClient{
		token:   token,
		baseURL: defaultAPIBase,
		sync:    syncRun,
		timeout: timeout,
		fetch:   httpFetch(hc),
		sleep:   sleepCtx,
	}
}

func httpFetch(hc *http.Client) fetchFunc {
	return func(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return 0, nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := hc.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, err
		}
		return resp.StatusCode, data, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the actor with the given input and returns its dataset
// items. Transport failures and empty results are retried up to three
// attempts with growing backoffs; quota exhaustion (402) and other
// non-retryable API rejections abort immediately.
func (c *actorClient) Run(ctx context.Context, actorID string, input any) ([]normalize.Item, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("actor %s: marshal input: %w", actorID, err)
	}

	var lastErr error
	for attempt := 0; attempt < runAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, retryBackoffs[attempt-1]); err != nil {
				return nil, err
			}
		}

		var items []normalize.Item
		if c.sync {
			items, err = c.runSync(ctx, actorID, payload)
		} else {
			items, err = c.runAsync(ctx, actorID, payload)
		}
		if err == nil && len(items) > 0 {
			return items, nil
		}
		if err == nil {
			lastErr = ErrRemoteEmpty
			continue
		}

		var quota *QuotaError
		if errors.As(err, &quota) {
			return nil, err
		}
		var status *HTTPStatusError
		if errors.As(err, &status) && status.StatusCode >= 400 && status.StatusCode < 500 {
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		lastErr = err
		log.Printf("[actor] %s attempt %d/%d failed: %v", actorID, attempt+1, runAttempts, err)
	}
	return nil, fmt.Errorf("actor %s: all attempts failed: %w", actorID, lastErr)
}

func (c *actorClient) runSync(ctx context.Context, actorID string, payload []byte) ([]normalize.Item, error) {
	url := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s", c.baseURL, actorID, c.token)
	body, err := c.do(ctx, http.MethodPost, url, payload, actorID)
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

func (c *actorClient) runAsync(ctx context.Context, actorID string, payload []byte) ([]normalize.Item, error) {
	startURL := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s", c.baseURL, actorID, c.token)
	body, err := c.do(ctx, http.MethodPost, startURL, payload, actorID)
	if err != nil {
		return nil, err
	}

	var started struct {
		Data struct {
			ID               string `json:"id"`
			DefaultDatasetID string `json:"defaultDatasetId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &started); err != nil {
		return nil, fmt.Errorf("actor %s: decode run: %w", actorID, err)
	}
	if started.Data.ID == "" {
		return nil, fmt.Errorf("actor %s: run response missing id", actorID)
	}

	status, err := c.waitRun(ctx, actorID, started.Data.ID)
	if err != nil {
		return nil, err
	}
	if status != "SUCCEEDED" {
		return nil, fmt.Errorf("actor %s: run %s ended %s", actorID, started.Data.ID, status)
	}

	itemsURL := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s", c.baseURL, started.Data.DefaultDatasetID, c.token)
	itemsBody, err := c.do(ctx, http.MethodGet, itemsURL, nil, actorID)
	if err != nil {
		return nil, err
	}
	return decodeItems(itemsBody)
}

// waitRun polls the run until it reaches a terminal state or the poll
// budget runs out.
func (c *actorClient) waitRun(ctx context.Context, actorID, runID string) (string, error) {
	url := fmt.Sprintf("%s/v2/actor-runs/%s?token=%s", c.baseURL, runID, c.token)
	for i := 0; i < pollLimit; i++ {
		if err := c.sleep(ctx, pollInterval); err != nil {
			return "", err
		}
		body, err := c.do(ctx, http.MethodGet, url, nil, actorID)
		if err != nil {
			return "", err
		}
		var run struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &run); err != nil {
			return "", fmt.Errorf("actor %s: decode run status: %w", actorID, err)
		}
		switch run.Data.Status {
		case "SUCCEEDED", "FAILED", "TIMED-OUT", "ABORTED":
			return run.Data.Status, nil
		}
	}
	return "", fmt.Errorf("actor %s: run %s did not finish within poll budget", actorID, runID)
}

// do performs one exchange with the per-request timeout and maps status
// codes onto the typed errors.
func (c *actorClient) do(ctx context.Context, method, url string, payload []byte, actorID string) ([]byte, error) {
	reqCtx := ctx
	cancel := func() {}
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	status, body, err := c.fetch(reqCtx, method, url, payload)
	cancel()
	if err != nil {
		return nil, err
	}
	if status == http.StatusPaymentRequired {
		return nil, &QuotaError{StatusCode: status, ActorID: actorID}
	}
	if status < 200 || status > 299 {
		return nil, &HTTPStatusError{StatusCode: status, URL: url}
	}
	return body, nil
}

// decodeItems parses the dataset payload: a bare JSON array, or an
// {items: []} / {data: []} envelope.
func decodeItems(body []byte) ([]normalize.Item, error) {
	var items []normalize.Item
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var envelope struct {
		Items []normalize.Item `json:"items"`
		Data  []normalize.Item `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	if envelope.Items != nil {
		return envelope.Items, nil
	}
	return envelope.Data, nil
}
