package liftover

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/pgs-harmonizer/internal/build"
)

// testChain maps chr1 onto itself with an offset and a gap, plus a minus
// strand copy of the first 50 bases onto chr5 and an identity chrM chain.
const testChain = `chain 1000 chr1 1000 + 0 300 chr1 2000 + 100 400 1
100 50 50
150

chain 500 chr1 1000 + 0 50 chr5 5000 - 10 60 2
50

chain 10 chrM 16571 + 0 10 chrM 16569 + 0 10 3
10
`

var hg19ToHg38 = build.Pair{Source: build.Hg19, Target: build.Hg38}

func loadTestChain(t *testing.T) *ChainMap {
	t.Helper()
	m, err := ReadChain(strings.NewReader(testChain))
	require.NoError(t, err)
	return m
}

func TestReadChain(t *testing.T) {
	m := loadTestChain(t)
	assert.Equal(t, 3, m.ChainCount())
	assert.Equal(t, 2, m.Chromosomes())
}

func TestReadChain_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"short header", "chain 1 chr1 100 + 0 10\n10\n"},
		{"data before header", "10 0 0\n"},
		{"bad number", "chain 1 chr1 100 + 0 10 chr1 100 + 0 10 1\nten\n"},
		{"two values", "chain 1 chr1 100 + 0 10 chr1 100 + 0 10 1\n5 5\n"},
		{"bad strand", "chain 1 chr1 100 + 0 10 chr1 100 ? 0 10 1\n10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadChain(strings.NewReader(tt.input))
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestConvert_Unique(t *testing.T) {
	c := NewConverterFromChain(hg19ToHg38, loadTestChain(t))

	r := c.Convert("1", 60)
	assert.Equal(t, 1, r.Count)
	assert.True(t, r.Found())
	assert.False(t, r.Ambiguous())
	assert.Equal(t, "1", r.Chrom)
	assert.Equal(t, int64(160), r.Pos)

	r = c.Convert("1", 151)
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, int64(251), r.Pos)

	r = c.Convert("chr1", 300)
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, int64(400), r.Pos)
}

func TestConvert_Ambiguous(t *testing.T) {
	c := NewConverterFromChain(hg19ToHg38, loadTestChain(t))

	r := c.Convert("1", 1)
	require.Equal(t, 2, r.Count)
	assert.True(t, r.Ambiguous())

	// Highest scoring chain first.
	assert.Equal(t, "1", r.Chrom)
	assert.Equal(t, int64(101), r.Pos)
	require.Len(t, r.Hits, 2)
	assert.Equal(t, "5", r.Hits[1].Chrom)
	assert.Equal(t, int64(4990), r.Hits[1].Pos)
	assert.Equal(t, byte('-'), r.Hits[1].Strand)
}

func TestConvert_NoHit(t *testing.T) {
	c := NewConverterFromChain(hg19ToHg38, loadTestChain(t))

	tests := []struct {
		name  string
		chrom string
		pos   int64
	}{
		{"gap between blocks", "1", 120},
		{"past chain end", "1", 301},
		{"unknown chromosome", "2", 10},
		{"zero position", "1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Convert(tt.chrom, tt.pos)
			assert.Equal(t, 0, r.Count)
			assert.False(t, r.Found())
			assert.Equal(t, "", r.Chrom)
			assert.Equal(t, int64(0), r.Pos)
		})
	}
}

func TestConvert_Mitochondrial(t *testing.T) {
	c := NewConverterFromChain(hg19ToHg38, loadTestChain(t))

	r := c.Convert("MT", 5)
	require.Equal(t, 1, r.Count)
	assert.Equal(t, "MT", r.Chrom)
	assert.Equal(t, int64(5), r.Pos)
}

func TestNewConverter_Identity(t *testing.T) {
	pair := build.Pair{Source: build.Hg38, Target: build.Hg38}
	c, err := NewConverter(context.Background(), pair, failingSource{})
	require.NoError(t, err)
	assert.Equal(t, "", c.ChainName())
	assert.Equal(t, 0, c.Convert("1", 100).Count)
}

func TestNewConverter_AcquisitionFailure(t *testing.T) {
	_, err := NewConverter(context.Background(), hg19ToHg38, failingSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire chain")
}

type failingSource struct{}

func (failingSource) Chain(context.Context, build.Pair) (*ChainMap, error) {
	return nil, errors.New("no chain")
}

func TestChainURL(t *testing.T) {
	assert.Equal(t, "hg19ToHg38.over.chain.gz", ChainFileName(hg19ToHg38))
	assert.Equal(t,
		"https://hgdownload.soe.ucsc.edu/goldenPath/hg19/liftOver/hg19ToHg38.over.chain.gz",
		ChainURL(DefaultChainBaseURL, hg19ToHg38))
	assert.Equal(t,
		"http://x/hg38/liftOver/hg38ToHg19.over.chain.gz",
		ChainURL("http://x/", build.Pair{Source: build.Hg38, Target: build.Hg19}))
}

func TestLoadChainFile_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testChain))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "test.over.chain.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	m, err := LoadChainFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.ChainCount())
	assert.Equal(t, path, m.Name)
}

func TestFileChainSource_DownloadsOnce(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/hg19/liftOver/hg19ToHg38.over.chain.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(testChain))
	}))
	defer srv.Close()

	src := NewFileChainSource(t.TempDir())
	src.BaseURL = srv.URL

	c, err := NewConverter(context.Background(), hg19ToHg38, src)
	require.NoError(t, err)
	assert.Equal(t, int64(160), c.Convert("1", 60).Pos)
	assert.Equal(t, "UCSC: hg19 to hg38", c.ChainName())

	_, err = src.Chain(context.Background(), hg19ToHg38)
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFileChainSource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	src := NewFileChainSource(dir)
	src.BaseURL = srv.URL

	_, err := src.Chain(context.Background(), hg19ToHg38)
	require.Error(t, err)

	_, statErr := os.Stat(src.Path(hg19ToHg38))
	assert.True(t, os.IsNotExist(statErr), "failed download must not leave a file behind")
}

func TestBlockIndex_MatchesLinearScan(t *testing.T) {
	blocks := []*block{
		{start: 1000, end: 5000},
		{start: 2000, end: 3000},
		{start: 4000, end: 8000},
		{start: 6000, end: 7000},
		{start: 9000, end: 10000},
	}
	idx := buildBlockIndex(blocks)

	for pos := int64(0); pos <= 11000; pos += 250 {
		want := map[*block]bool{}
		for _, b := range blocks {
			if pos >= b.start && pos < b.end {
				want[b] = true
			}
		}
		got := map[*block]bool{}
		for _, b := range idx.findOverlaps(pos) {
			got[b] = true
		}
		assert.Equal(t, want, got, "pos=%d", pos)
	}
}

func TestBlockIndex_StopsAtFirstUnreachableBlock(t *testing.T) {
	const n = 100000
	blocks := make([]*block, n)
	for i := range blocks {
		blocks[i] = &block{start: int64(i) * 100, end: int64(i)*100 + 50}
	}
	idx := buildBlockIndex(blocks)

	for _, pos := range []int64{0, 25, 50*100 + 10, (n-1)*100 + 49} {
		got, visited := idx.scan(pos)
		require.Len(t, got, 1, "pos=%d", pos)
		assert.Equal(t, 1, visited, "pos=%d", pos)
	}

	// In a gap between blocks nothing is examined.
	got, visited := idx.scan((n-1)*100 - 10)
	assert.Empty(t, got)
	assert.Zero(t, visited)
}

func TestBlockIndex_SpanningBlock(t *testing.T) {
	// A long first block keeps every later query reaching back to it.
	blocks := []*block{
		{start: 0, end: 10000},
		{start: 100, end: 200},
		{start: 300, end: 400},
		{start: 500, end: 600},
	}
	idx := buildBlockIndex(blocks)

	got, visited := idx.scan(550)
	assert.Len(t, got, 2)
	assert.Equal(t, 4, visited)

	got, _ = idx.scan(5000)
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].start)
}

func TestBlockIndex_Empty(t *testing.T) {
	assert.Empty(t, buildBlockIndex(nil).findOverlaps(100))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.0 KB", formatSize(1024))
	assert.Equal(t, "1.5 MB", formatSize(1536*1024))
}
