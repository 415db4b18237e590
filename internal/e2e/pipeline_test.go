package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/jobscout/internal/api"
	"github.com/efebarandurmaz/jobscout/internal/job"
	"github.com/efebarandurmaz/jobscout/internal/jsearch"
	"github.com/efebarandurmaz/jobscout/internal/observability"
	"github.com/efebarandurmaz/jobscout/internal/search"
	"github.com/efebarandurmaz/jobscout/internal/server"
	"github.com/efebarandurmaz/jobscout/internal/textproc"
	"github.com/efebarandurmaz/jobscout/internal/vector"
)

// Three postings, the third reusing the first one's apply link.
const vendorBody = `{
  "status": "OK",
  "request_id": "e2e",
  "data": [
    {
      "job_id": "a1",
      "job_title": "Senior Software Engineer",
      "job_description": "Golang microservices, visa sponsorship offered",
      "job_apply_link": "https://jobs.example.com/a",
      "employer_name": "Acme",
      "job_city": "Berlin",
      "job_state": null,
      "job_country": "DE"
    },
    {
      "job_id": "b2",
      "job_title": "Data Scientist",
      "job_description": "Python notebooks",
      "job_apply_link": "https://jobs.example.com/b",
      "employer_name": null,
      "job_city": null,
      "job_state": null,
      "job_country": null
    },
    {
      "job_id": "a1-repost",
      "job_title": "Senior Software Engineer (repost)",
      "job_description": "Same job",
      "job_apply_link": "https://jobs.example.com/a",
      "employer_name": "Acme"
    }
  ]
}`

// keywordEmbedder maps text onto counts of a few fixed terms, so ranking is
// deterministic and meaningful.
type keywordEmbedder struct {
	mu    sync.Mutex
	terms []string
	texts []string
}

func (k *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(k.terms)+1)
	for i, t := range k.terms {
		v[i] = float32(strings.Count(lower, t))
	}
	v[len(k.terms)] = 0.01
	return v
}

func (k *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.texts = append(k.texts, texts...)
	k.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return k.vector(text), nil
}

type vendorStub struct {
	mu      sync.Mutex
	queries []string
	params  []map[string]string
}

func (v *vendorStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		q := r.URL.Query()
		v.queries = append(v.queries, q.Get("query"))
		v.params = append(v.params, map[string]string{
			"country":     q.Get("country"),
			"date_posted": q.Get("date_posted"),
			"key":         r.Header.Get("x-rapidapi-key"),
		})
		v.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(vendorBody))
	}
}

func newPipeline(t *testing.T) (*search.Service, *vector.MemoryIndex, *vendorStub, *keywordEmbedder) {
	t.Helper()
	stub := &vendorStub{}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	client, err := jsearch.New(jsearch.Config{APIKey: "rapid-key", BaseURL: srv.URL})
	require.NoError(t, err)

	emb := &keywordEmbedder{terms: []string{"golang", "python", "visa", "engineer"}}
	index := vector.NewMemoryIndex(emb)
	return search.NewService(client, index), index, stub, emb
}

func TestPipeline_SearchRelevantJobs(t *testing.T) {
	svc, index, stub, emb := newPipeline(t)
	ctx := context.Background()

	docs, err := svc.SearchRelevantJobs(ctx, "Senior Software Engineer visa sponsorship", map[string]string{"country": "de"})
	require.NoError(t, err)

	require.Len(t, stub.queries, 1)
	assert.Equal(t, "Senior Software Engineer visa sponsorship", stub.queries[0])
	assert.Equal(t, "de", stub.params[0]["country"])
	assert.Equal(t, "all", stub.params[0]["date_posted"])
	assert.Equal(t, "rapid-key", stub.params[0]["key"])

	// The repost shares an apply link and is dropped before indexing.
	assert.Equal(t, 2, index.Len())
	assert.Len(t, emb.texts, 2)
	_, reposted := index.Get("a1-repost")
	assert.False(t, reposted)

	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0].JobID, "engineering posting should rank first")
	assert.Equal(t, "Berlin, DE", docs[0].LocationString)
	assert.Nil(t, docs[0].RelevanceScore, "memory backend exposes no score")
	assert.Equal(t, "b2", docs[1].JobID)
	assert.Equal(t, job.LocationNotSpecified, docs[1].LocationString)
	assert.Nil(t, docs[1].EmployerName)
}

func TestPipeline_StoredTextMatchesTemplate(t *testing.T) {
	svc, _, _, emb := newPipeline(t)

	_, err := svc.SearchRelevantJobs(context.Background(), "python", map[string]string{"country": "us"})
	require.NoError(t, err)

	require.Len(t, emb.texts, 2)
	assert.Equal(t,
		"Job Title: Data Scientist\nCompany: None\nLocation: Location not specified\n\nDescription: Python notebooks",
		emb.texts[1])
}

func TestPipeline_RepeatedSearchDoesNotDuplicate(t *testing.T) {
	svc, index, _, _ := newPipeline(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.SearchRelevantJobs(ctx, "golang", map[string]string{"country": "de"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, index.Len())
}

func TestPipeline_ConcurrentSearches(t *testing.T) {
	svc, index, _, _ := newPipeline(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs, err := svc.SearchRelevantJobs(ctx, "engineer", map[string]string{"country": "de"})
			if err == nil && len(docs) == 0 {
				t.Error("expected results after upsert")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, index.Len())
}

func TestPipeline_OverHTTP(t *testing.T) {
	metrics := observability.NewPipelineMetrics()
	index := vector.NewMemoryIndex(&keywordEmbedder{terms: []string{"golang", "python", "visa", "engineer"}})
	svc := search.NewService(jsearchFor(t), index, search.WithMetrics(metrics))

	health := server.NewHealthServer(nil)
	health.RegisterCheck("vector_index", server.IndexHealthChecker(string(index.Backend()), nil))
	srv := httptest.NewServer(api.NewServer(nil, svc,
		api.WithHealth(health),
		api.WithMetrics(metrics.Handler()),
	).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs?query=golang&country=de")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var docs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0]["job_id"])
	assert.Equal(t, "Berlin, DE", docs[0]["location_string"])
	assert.NotContains(t, docs[0], "relevance_score")

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jobscout_vendor_jobs_total 3")
	assert.Contains(t, string(body), "jobscout_duplicate_jobs_total 1")
}

func TestTextProcess_OverHTTP(t *testing.T) {
	emb := &keywordEmbedder{terms: []string{"golang", "python", "visa", "engineer"}}
	index := vector.NewMemoryIndex(emb)
	srv := httptest.NewServer(api.NewServer(nil, search.NewService(jsearchFor(t), index),
		api.WithTextProcessor(textproc.New(emb)),
	).Handler())
	defer srv.Close()

	body := `{"text":"Visa sponsorship is available.\n\nWe mostly write Python.\n\nThe team ships Golang daily.","query":"golang","chunk_size":40,"chunk_overlap":0}`
	resp, err := http.Post(srv.URL+"/text/process", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res textproc.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 3, res.ChunkCount)
	require.Len(t, res.SearchResults, 3)
	assert.Equal(t, "The team ships Golang daily.", res.SearchResults[0].PageContent)
	assert.Zero(t, index.Len(), "text chunks never reach the job index")
}

func TestPipeline_VendorFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"quota exceeded"}`))
	}))
	defer srv.Close()

	client, err := jsearch.New(jsearch.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	index := vector.NewMemoryIndex(&keywordEmbedder{terms: []string{"go"}})
	svc := search.NewService(client, index)

	docs, err := svc.SearchRelevantJobs(context.Background(), "go", map[string]string{"country": "de"})
	require.Error(t, err)
	assert.Nil(t, docs)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, index.Len())
}

func jsearchFor(t *testing.T) *jsearch.Client {
	t.Helper()
	stub := &vendorStub{}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	c, err := jsearch.New(jsearch.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}
