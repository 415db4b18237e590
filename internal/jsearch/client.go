// Package jsearch is a client for the JSearch job-search API served through
// RapidAPI. Vendor postings are mapped onto job.RawJob.
package jsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/efebarandurmaz/jobscout/internal/job"
)

const (
	DefaultBaseURL = "https://jsearch.p.rapidapi.com"
	DefaultHost    = "jsearch.p.rapidapi.com"
	defaultTimeout = 30 * time.Second
)

// ErrJobNotFound is returned by JobDetails when the vendor has no such job.
var ErrJobNotFound = errors.New("jsearch: job not found")

// Error is a failed vendor call. StatusCode and Body are set for non-2xx
// responses; Err is set for transport and decoding failures.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jsearch %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("jsearch %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Host    string
	Timeout time.Duration

	// RequestsPerSecond caps outgoing calls to stay inside the RapidAPI
	// plan quota. 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client calls the JSearch API.
type Client struct {
	apiKey  string
	baseURL string
	host    string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a client. An API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("jsearch: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		host:    cfg.Host,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  slog.Default().With("component", "jsearch"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

func (c *Client) Name() string { return "jsearch" }

// SearchJobs runs a search with the pipeline's string filters. An empty
// query returns no jobs without calling the API.
func (c *Client) SearchJobs(ctx context.Context, query string, filters map[string]string) ([]job.RawJob, error) {
	if strings.TrimSpace(query) == "" {
		return []job.RawJob{}, nil
	}
	params, err := ParamsFromFilters(query, filters)
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}
	return c.Search(ctx, params)
}

// Search runs a search with typed params.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]job.RawJob, error) {
	if err := params.Validate(); err != nil {
		return nil, &Error{Op: "search", Err: err}
	}

	var resp searchResponse
	if err := c.get(ctx, "search", "/search", params.Values(), &resp); err != nil {
		return nil, err
	}

	jobs, err := resp.rawJobs()
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}
	c.logger.Debug("search completed", "query", params.Query, "country", params.Country, "jobs", len(jobs))
	return jobs, nil
}

// JobDetails fetches a single posting by vendor id.
func (c *Client) JobDetails(ctx context.Context, jobID string) (job.RawJob, error) {
	var resp searchResponse
	if err := c.get(ctx, "job-details", "/job-details", url.Values{"job_id": {jobID}}, &resp); err != nil {
		return job.RawJob{}, err
	}
	if len(resp.Data) == 0 {
		return job.RawJob{}, ErrJobNotFound
	}
	raw := resp.Data[0].rawJob()
	if err := raw.Validate(); err != nil {
		return job.RawJob{}, &Error{Op: "job-details", Err: err}
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("x-rapidapi-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type searchResponse struct {
	Status     string         `json:"status"`
	RequestID  string         `json:"request_id"`
	Parameters map[string]any `json:"parameters"`
	Data       []vendorJob    `json:"data"`
}

type vendorJob struct {
	JobID          string  `json:"job_id"`
	JobTitle       string  `json:"job_title"`
	JobDescription string  `json:"job_description"`
	JobApplyLink   string  `json:"job_apply_link"`
	EmployerName   *string `json:"employer_name"`
	JobCity        *string `json:"job_city"`
	JobState       *string `json:"job_state"`
	JobCountry     *string `json:"job_country"`
}

func (v vendorJob) rawJob() job.RawJob {
	return job.RawJob{
		JobID:        v.JobID,
		Title:        v.JobTitle,
		Description:  v.JobDescription,
		ApplyURL:     v.JobApplyLink,
		EmployerName: v.EmployerName,
		City:         v.JobCity,
		State:        v.JobState,
		Country:      v.JobCountry,
	}
}

func (r searchResponse) rawJobs() ([]job.RawJob, error) {
	jobs := make([]job.RawJob, 0, len(r.Data))
	for _, v := range r.Data {
		raw := v.rawJob()
		if err := raw.Validate(); err != nil {
			return nil, err
		}
		jobs = append(jobs, raw)
	}
	return jobs, nil
}
