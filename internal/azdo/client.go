package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const apiVersion = "7.1"

// Config holds the client connection and retry tuning. Zero values fall back
// to the defaults in withDefaults.
type Config struct {
	OrgURL  string // https://dev.azure.com/{org}, no trailing slash
	Project string
	PAT     string

	AttemptTimeout time.Duration // per HTTP attempt
	BatchTimeout   time.Duration // per logical batch, covers retries
	RetryAttempts  int           // total attempts for one request
	RetryBase      time.Duration
	RetryCap       time.Duration
	RateLimit      float64 // requests per second across all workers
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 60 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 8 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "adoflow"
	}
	c.OrgURL = strings.TrimRight(c.OrgURL, "/")
	return c
}

// Client talks to the Azure DevOps REST API. Safe for concurrent use; the
// shared limiter paces all workers together.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client from cfg, applying defaults to unset fields.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg: cfg,
		httpc: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns: 64,
				// Transport-level backstop for the worker pools: even a
				// misconfigured caller cannot open more connections to the
				// service than the worker ceiling.
				MaxConnsPerHost:     maxWorkers,
				MaxIdleConnsPerHost: maxWorkers,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
	}
}

// BatchTimeout exposes the per-batch wall clock for the fetch stages.
func (c *Client) BatchTimeout() time.Duration { return c.cfg.BatchTimeout }

// RetryAttempts exposes the attempt budget for stages that re-run validation.
func (c *Client) RetryAttempts() int { return c.cfg.RetryAttempts }

// projectPath prefixes an API suffix with the escaped project segment.
func (c *Client) projectPath(suffix string) string {
	return "/" + url.PathEscape(c.cfg.Project) + suffix
}

// VerifyProject confirms the org URL, PAT, and project resolve before a run
// spends its budget on batches.
func (c *Client) VerifyProject(ctx context.Context) error {
	var p projectDTO
	path := "/_apis/projects/" + url.PathEscape(c.cfg.Project)
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &p); err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return &NotFoundError{Resource: fmt.Sprintf("project %q in %s", c.cfg.Project, c.cfg.OrgURL)}
		}
		return err
	}
	log.Debug().Str("project", p.Name).Str("state", p.State).Msg("Project verified")
	return nil
}

// callMeta reports what it took to satisfy one logical request.
type callMeta struct {
	Attempts int
	Status   int
}

// Retries counts the attempts beyond the first.
func (m callMeta) Retries() int {
	if m.Attempts > 1 {
		return m.Attempts - 1
	}
	return 0
}

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeRetryable
	outcomeTerminal
	outcomeCancelled
)

// outcome is the classified result of a single HTTP attempt.
type outcome struct {
	kind       outcomeKind
	status     int
	err        error
	retryAfter time.Duration
}

// doJSON performs one logical request: it paces on the shared limiter, runs
// attempts with per-attempt timeouts, and retries retryable outcomes with
// exponential backoff and jitter. A Retry-After hint acts as a floor under
// the computed delay, never a replacement for it.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) (callMeta, error) {
	var meta callMeta

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return meta, fmt.Errorf("encoding request body: %w", err)
		}
	}

	u := c.requestURL(path, query)
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		meta.Attempts = attempt

		if err := c.limiter.Wait(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return meta, cerr
			}
			return meta, err
		}

		o := c.attempt(ctx, method, u, payload, out)
		meta.Status = o.status

		switch o.kind {
		case outcomeOK:
			return meta, nil
		case outcomeTerminal, outcomeCancelled:
			return meta, o.err
		}

		if attempt == c.cfg.RetryAttempts {
			return meta, fmt.Errorf("giving up after %d attempts: %w", attempt, o.err)
		}

		delay := retryDelay(attempt, c.cfg.RetryBase, c.cfg.RetryCap)
		if o.retryAfter > delay {
			delay = o.retryAfter
		}
		log.Debug().
			Str("method", method).
			Str("path", path).
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("kind", ErrorKind(o.err)).
			Msg("Retrying request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return meta, ctx.Err()
		case <-timer.C:
		}
	}
	return meta, fmt.Errorf("retry loop exited unexpectedly")
}

func (c *Client) requestURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	return c.cfg.OrgURL + path + "?" + query.Encode()
}

// attempt runs one HTTP round trip and classifies the result.
func (c *Client) attempt(ctx context.Context, method, u string, payload []byte, out any) outcome {
	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, u, rdr)
	if err != nil {
		return outcome{kind: outcomeTerminal, err: err}
	}
	req.SetBasicAuth("", c.cfg.PAT)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{kind: outcomeCancelled, err: ctx.Err()}
		}
		if actx.Err() == context.DeadlineExceeded {
			return outcome{kind: outcomeRetryable, err: &TransientError{Err: fmt.Errorf("attempt timed out after %s", c.cfg.AttemptTimeout)}}
		}
		return outcome{kind: outcomeRetryable, err: &TransientError{Err: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		if ctx.Err() != nil {
			return outcome{kind: outcomeCancelled, status: resp.StatusCode, err: ctx.Err()}
		}
		return outcome{kind: outcomeRetryable, status: resp.StatusCode, err: &TransientError{Status: resp.StatusCode, Err: err}}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return outcome{
					kind:   outcomeRetryable,
					status: resp.StatusCode,
					err:    &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)},
				}
			}
		}
		return outcome{kind: outcomeOK, status: resp.StatusCode}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return outcome{kind: outcomeTerminal, status: resp.StatusCode, err: &AuthError{Status: resp.StatusCode}}

	case resp.StatusCode == http.StatusNotFound:
		return outcome{kind: outcomeTerminal, status: resp.StatusCode, err: &NotFoundError{Resource: method + " " + req.URL.Path}}

	case resp.StatusCode == http.StatusTooManyRequests:
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		return outcome{kind: outcomeRetryable, status: resp.StatusCode, err: &RateLimitError{RetryAfter: ra}, retryAfter: ra}

	case resp.StatusCode >= 500:
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		return outcome{kind: outcomeRetryable, status: resp.StatusCode, err: &TransientError{Status: resp.StatusCode}, retryAfter: ra}

	default:
		return outcome{kind: outcomeTerminal, status: resp.StatusCode, err: &RequestError{Status: resp.StatusCode, Message: apiErrorMessage(raw)}}
	}
}

// apiErrorMessage pulls the human-readable message out of a 4xx body.
func apiErrorMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Message != "" {
		return er.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// retryDelay computes base*2^(attempt-1) capped at limit, plus up to 20% jitter.
func retryDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base << uint(attempt-1)
	if d > limit || d <= 0 {
		d = limit
	}
	if span := int64(d) / 5; span > 0 {
		d += time.Duration(rand.Int63n(span))
	}
	return d
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
