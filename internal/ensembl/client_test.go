package ensembl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/pgs-harmonizer/internal/build"
)

// fakeEnsembl serves POST /variation/homo_sapiens from a fixed table.
func fakeEnsembl(t *testing.T, known map[string]*Variation, failFirst int, status int) (*httptest.Server, *atomic.Int32, *[][]string) {
	t.Helper()
	var calls atomic.Int32
	var mu sync.Mutex
	var batches [][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/variation/homo_sapiens" {
			http.NotFound(w, r)
			return
		}
		if int(n) <= failFirst {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"busy"}`))
			return
		}

		var body postBody
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		batches = append(batches, body.IDs)
		mu.Unlock()

		out := map[string]*Variation{}
		for _, id := range body.IDs {
			if v, ok := known[id]; ok {
				out[id] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &batches
}

func testClient(url string, batchSize int) *Client {
	c := NewClient(Options{BaseURL: url, BatchSize: batchSize, MaxRetries: 3, Concurrency: 2})
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

var knownVariants = map[string]*Variation{
	"rs1": {Name: "rs1", Mappings: []Mapping{{SeqRegionName: "1", Start: 100, End: 100, Strand: 1, AlleleString: "A/G"}}},
	"rs2": {Name: "rs2", Mappings: []Mapping{{SeqRegionName: "2", Start: 200, End: 200, Strand: 1, AlleleString: "C/T"}}},
	"rs3": {Name: "rs3", Mappings: []Mapping{{SeqRegionName: "3", Start: 300, End: 300, Strand: 1, AlleleString: "G/A"}}},
	"rs4": {Name: "rs4", Mappings: []Mapping{{SeqRegionName: "4", Start: 400, End: 400, Strand: 1, AlleleString: "T/C"}}},
	"rs5": {Name: "rs5", Mappings: []Mapping{{SeqRegionName: "5", Start: 500, End: 500, Strand: 1, AlleleString: "A/C"}}},
}

func TestLookup_Chunked(t *testing.T) {
	srv, calls, batches := fakeEnsembl(t, knownVariants, 0, 0)
	c := testClient(srv.URL, 2)

	table, err := c.Lookup(context.Background(), []string{"rs1", "rs2", "rs3", "rs4", "rs5", "rs1", "rs404"})
	require.NoError(t, err)

	assert.Len(t, table, 5)
	assert.NotContains(t, table, "rs404")
	assert.Equal(t, int32(3), calls.Load(), "6 distinct ids in batches of 2")

	total := 0
	for _, b := range *batches {
		assert.LessOrEqual(t, len(b), 2)
		total += len(b)
	}
	assert.Equal(t, 6, total)
}

func TestLookup_Empty(t *testing.T) {
	srv, calls, _ := fakeEnsembl(t, knownVariants, 0, 0)
	c := testClient(srv.URL, 2)

	table, err := c.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, table)
	assert.Equal(t, int32(0), calls.Load())
}

func TestLookup_RetriesTransientErrors(t *testing.T) {
	srv, calls, _ := fakeEnsembl(t, knownVariants, 2, http.StatusServiceUnavailable)
	c := testClient(srv.URL, 200)

	table, err := c.Lookup(context.Background(), []string{"rs1"})
	require.NoError(t, err)
	assert.Contains(t, table, "rs1")
	assert.Equal(t, int32(3), calls.Load())
}

func TestLookup_GivesUpAfterMaxRetries(t *testing.T) {
	srv, calls, _ := fakeEnsembl(t, knownVariants, 100, http.StatusTooManyRequests)
	c := testClient(srv.URL, 200)

	_, err := c.Lookup(context.Background(), []string{"rs1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestLookup_PermanentError(t *testing.T) {
	srv, calls, _ := fakeEnsembl(t, knownVariants, 100, http.StatusBadRequest)
	c := testClient(srv.URL, 200)

	_, err := c.Lookup(context.Background(), []string{"rs1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses are not retried")
}

func TestCanonical(t *testing.T) {
	table := Table{
		"rs10": {
			Name: "rs10",
			Mappings: []Mapping{
				{SeqRegionName: "HSCHR6_MHC_COX_CTG1", Start: 1, AlleleString: "A/G"},
				{SeqRegionName: "X", Start: 50, AlleleString: "A/G"},
				{SeqRegionName: "6", Start: 31000, AlleleString: "A/G/T"},
			},
		},
		"rs11": {
			Name:     "rs99",
			Mappings: []Mapping{{SeqRegionName: "1", Start: 7, AlleleString: "C/T"}},
		},
		"rs12": {
			Name:     "rs12",
			Mappings: []Mapping{{SeqRegionName: "HG1_PATCH", Start: 7, AlleleString: "C/T"}},
		},
	}
	chroms := DefaultChromosomes()

	r, ok := table.Canonical("rs10", chroms)
	require.True(t, ok)
	assert.Equal(t, "6", r.Chrom)
	assert.Equal(t, int64(31000), r.Pos)
	assert.Equal(t, []string{"A", "G", "T"}, r.Alleles)
	assert.Equal(t, "6:31000:A:G:T", r.VariantID)
	assert.Equal(t, "rs10", r.RsID)

	r, ok = table.Canonical("rs11", chroms)
	require.True(t, ok)
	assert.Equal(t, "rs99", r.RsID, "merged identifiers resolve to the current name")

	_, ok = table.Canonical("rs12", chroms)
	assert.False(t, ok, "patch-only mappings are not canonical")

	_, ok = table.Canonical("rs404", chroms)
	assert.False(t, ok)

	// Caller ordering decides between canonical chromosomes.
	r, ok = table.Canonical("rs10", []string{"X", "6"})
	require.True(t, ok)
	assert.Equal(t, "X", r.Chrom)
}

func TestDefaultChromosomes(t *testing.T) {
	chroms := DefaultChromosomes()
	assert.Len(t, chroms, 25)
	assert.Equal(t, "1", chroms[0])
	assert.Equal(t, "22", chroms[21])
	assert.Equal(t, []string{"X", "Y", "MT"}, chroms[22:])
}

func TestServerURL(t *testing.T) {
	u, err := ServerURL(build.Hg38)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, u)

	u, err = ServerURL(build.Hg19)
	require.NoError(t, err)
	assert.Equal(t, GRCh37URL, u)

	_, err = ServerURL(build.Hg18)
	assert.Error(t, err)
}
