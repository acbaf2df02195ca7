// Package ensembl resolves reference SNP identifiers against the Ensembl
// REST variation endpoint.
package ensembl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/pgs-harmonizer/internal/build"
)

// Ensembl REST servers.
const (
	DefaultURL  = "https://rest.ensembl.org"
	GRCh37URL   = "https://grch37.rest.ensembl.org"
	maxPOSTSize = 200 // Ensembl limit for POST /variation
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration // per request
	MaxRetries  uint64
	BatchSize   int
	Concurrency int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client performs batched variation lookups.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  uint64
	batchSize   int
	concurrency int
	logger      *zap.Logger

	// newBackOff is swapped in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// ServerURL returns the Ensembl REST server hosting the given build.
func ServerURL(b build.Build) (string, error) {
	switch b {
	case build.Hg38:
		return DefaultURL, nil
	case build.Hg19:
		return GRCh37URL, nil
	default:
		return "", fmt.Errorf("no Ensembl REST server for build %s", b)
	}
}

// NewClient creates a client. Zero option values fall back to defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:     opts.BaseURL,
		httpClient:  opts.HTTPClient,
		maxRetries:  opts.MaxRetries,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultURL
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.maxRetries == 0 {
		c.maxRetries = 5
	}
	if c.batchSize <= 0 || c.batchSize > maxPOSTSize {
		c.batchSize = maxPOSTSize
	}
	if c.concurrency <= 0 {
		c.concurrency = 4
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.newBackOff = func() backoff.BackOff {
		return backoff.NewExponentialBackOff()
	}
	return c
}

// Lookup resolves every identifier in ids with one logical batched call.
// Requests are chunked to the Ensembl POST limit and retried with
// exponential backoff; identifiers unknown to Ensembl are absent from the
// returned table.
func (c *Client) Lookup(ctx context.Context, ids []string) (Table, error) {
	ids = dedupe(ids)
	table := make(Table, len(ids))
	if len(ids) == 0 {
		return table, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(ids); start += c.batchSize {
		end := min(start+c.batchSize, len(ids))
		chunk := ids[start:end]
		g.Go(func() error {
			res, err := c.postWithRetry(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			for id, v := range res {
				table[id] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("ensembl lookup complete",
		zap.Int("requested", len(ids)),
		zap.Int("resolved", len(table)))
	return table, nil
}

func (c *Client) postWithRetry(ctx context.Context, ids []string) (map[string]*Variation, error) {
	var res map[string]*Variation
	attempt := 0
	op := func() error {
		attempt++
		var err error
		res, err = c.post(ctx, ids)
		if err != nil {
			c.logger.Warn("ensembl request failed",
				zap.Int("attempt", attempt),
				zap.Int("ids", len(ids)),
				zap.Error(err))
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("ensembl lookup of %d ids: %w", len(ids), err)
	}
	return res, nil
}

type postBody struct {
	IDs []string `json:"ids"`
}

// post sends one POST /variation request. Errors that retrying cannot fix are
// wrapped in backoff.Permanent.
func (c *Client) post(ctx context.Context, ids []string) (map[string]*Variation, error) {
	body, err := json.Marshal(postBody{IDs: ids})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("encode request: %w", err))
	}

	url := c.baseURL + "/variation/homo_sapiens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("REST API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("REST API error %d: %s", resp.StatusCode, string(msg))
		if retryable(resp.StatusCode) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var out map[string]*Variation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode REST response: %w", err)
	}
	return out, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
